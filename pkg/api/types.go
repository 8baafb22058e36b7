package api

// CreateOrderRequest registers a new order. Amount and targetPrice are
// decimal strings (targetPrice in 1e18 fixed point). The from field is
// the caller identity supplied by the host; the API does not
// authenticate it, matching the core's opaque-identity contract.
type CreateOrderRequest struct {
	From        string `json:"from"`
	InputAsset  string `json:"inputAsset"`
	OutputAsset string `json:"outputAsset"`
	Amount      string `json:"amount"`
	TargetPrice string `json:"targetPrice"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type CreateOrderResponse struct {
	ID string `json:"id"`
}

type CancelOrderRequest struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// UpdateStatusRequest is the controller-only status advance.
type UpdateStatusRequest struct {
	From   string `json:"from"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// OrderInfo is the wire form of a ledger record.
type OrderInfo struct {
	ID          string `json:"id"`
	Creator     string `json:"creator"`
	InputAsset  string `json:"inputAsset"`
	OutputAsset string `json:"outputAsset"`
	Amount      string `json:"amount"`
	TargetPrice string `json:"targetPrice"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	Status      string `json:"status"`
	Seq         uint64 `json:"seq"`
}

type ExpiredResponse struct {
	ID      string `json:"id"`
	Expired bool   `json:"expired"`
}

// LedgerStatus summarizes the registry for dashboards.
type LedgerStatus struct {
	Orders     uint64 `json:"orders"`
	Active     int    `json:"active"`
	Controller string `json:"controller"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest subscribes or unsubscribes WebSocket channels.
// Channels: "orders" (creations/cancellations), "status" (status moves).
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSEvent wraps a ledger notification for the WebSocket stream.
type WSEvent struct {
	Type string `json:"type"` // order_created | status_changed | order_cancelled
	Data any    `json:"data"`
}
