package api

import (
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/openorder/ledgerd/pkg/ledger"
)

// Server exposes the ledger over REST and WebSocket. It is a host shim:
// caller identity is taken from the request body and passed through to
// the ledger's equality checks, never authenticated here.
type Server struct {
	ledger *ledger.Ledger
	router *mux.Router
	hub    *Hub
}

// NewServer wires the ledger and an externally created hub; the node
// hands the same hub to a HubNotifier so ledger notifications reach
// WebSocket subscribers.
func NewServer(l *ledger.Ledger, hub *Hub) *Server {
	s := &Server{
		ledger: l,
		router: mux.NewRouter(),
		hub:    hub,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Mutations
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/status", s.handleUpdateStatus).Methods("POST")

	// Queries
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/active", s.handleGetActiveOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/expired", s.handleIsExpired).Methods("GET")
	api.HandleFunc("/creators/{address}/orders", s.handleGetOrdersByCreator).Methods("GET")
	api.HandleFunc("/ledger/status", s.handleLedgerStatus).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	from, ok := parseAddress(w, req.From, "from")
	if !ok {
		return
	}
	input, ok := parseAddress(w, req.InputAsset, "inputAsset")
	if !ok {
		return
	}
	output, ok := parseAddress(w, req.OutputAsset, "outputAsset")
	if !ok {
		return
	}
	amount, ok := parseBig(w, req.Amount, "amount")
	if !ok {
		return
	}
	price, ok := parseBig(w, req.TargetPrice, "targetPrice")
	if !ok {
		return
	}

	id, err := s.ledger.CreateOrder(ledger.CreateParams{
		Creator:     from,
		InputAsset:  input,
		OutputAsset: output,
		Amount:      amount,
		TargetPrice: price,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, CreateOrderResponse{ID: id.Hex()})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	from, ok := parseAddress(w, req.From, "from")
	if !ok {
		return
	}
	id, ok := parseOrderID(w, req.ID)
	if !ok {
		return
	}

	if err := s.ledger.CancelOrder(from, id); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled", "id": id.Hex()})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	from, ok := parseAddress(w, req.From, "from")
	if !ok {
		return
	}
	id, ok := parseOrderID(w, req.ID)
	if !ok {
		return
	}
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid status", err.Error())
		return
	}

	if err := s.ledger.UpdateStatus(from, id, status); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "updated", "id": id.Hex()})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	var filter *ledger.Status
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := ledger.ParseStatus(q)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid status filter", err.Error())
			return
		}
		filter = &st
	}
	respondJSON(w, orderInfos(s.ledger.AllOrders(filter)))
}

func (s *Server) handleGetActiveOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, orderInfos(s.ledger.ActiveOrders()))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	o, err := s.ledger.GetOrder(id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleIsExpired(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	expired, err := s.ledger.IsExpired(id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, ExpiredResponse{ID: id.Hex(), Expired: expired})
}

func (s *Server) handleGetOrdersByCreator(w http.ResponseWriter, r *http.Request) {
	creator, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	respondJSON(w, orderInfos(s.ledger.OrdersByCreator(creator)))
}

func (s *Server) handleLedgerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, LedgerStatus{
		Orders:     s.ledger.Count(),
		Active:     len(s.ledger.ActiveOrders()),
		Controller: s.ledger.Controller().Hex(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func orderInfo(o ledger.Order) OrderInfo {
	return OrderInfo{
		ID:          o.ID.Hex(),
		Creator:     o.Creator.Hex(),
		InputAsset:  o.InputAsset.Hex(),
		OutputAsset: o.OutputAsset.Hex(),
		Amount:      o.Amount.String(),
		TargetPrice: o.TargetPrice.String(),
		CreatedAt:   o.CreatedAt,
		ExpiresAt:   o.ExpiresAt,
		Status:      o.Status.String(),
		Seq:         o.Seq,
	}
}

func orderInfos(orders []ledger.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	return out
}

func parseAddress(w http.ResponseWriter, s, field string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid "+field, "expected a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseOrderID(w http.ResponseWriter, s string) (common.Hash, bool) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		respondError(w, http.StatusBadRequest, "invalid id", "expected a 32-byte hex hash")
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func parseBig(w http.ResponseWriter, s, field string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid "+field, "expected a decimal integer string")
		return nil, false
	}
	return v, true
}

func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsValidation(err):
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition), errors.Is(err, ledger.ErrDuplicateID):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
