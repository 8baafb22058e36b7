package p2p

import (
	"context"
	"encoding/json"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/openorder/ledgerd/pkg/ledger"
)

const (
	topicOrders = "ol-orders" // creations and cancellations
	topicStatus = "ol-status" // status moves
)

// EventNet publishes ledger notifications over gossipsub so off-core
// observers (indexers, mirrors) can follow the registry without polling
// the REST API. Publish-only on the ledger side; observers Subscribe.
type EventNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	tOrders, tStatus *pubsub.Topic
}

type Config struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

func NewEventNet(ctx context.Context, cfg Config) (*EventNet, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	net := &EventNet{h: h, ps: ps, log: cfg.Logger}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil && cfg.Logger != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if net.tOrders, err = ps.Join(topicOrders); err != nil {
		return nil, err
	}
	if net.tStatus, err = ps.Join(topicStatus); err != nil {
		return nil, err
	}

	if cfg.Logger != nil {
		cfg.Logger.Infow("eventnet_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	}
	return net, nil
}

func (n *EventNet) Host() host.Host { return n.h }

func (n *EventNet) Close() error { return n.h.Close() }

// SubscribeOrders returns a subscription on the orders topic, for
// observer processes built on the same package.
func (n *EventNet) SubscribeOrders() (*pubsub.Subscription, error) { return n.tOrders.Subscribe() }

// SubscribeStatus returns a subscription on the status topic.
func (n *EventNet) SubscribeStatus() (*pubsub.Subscription, error) { return n.tStatus.Subscribe() }

func (n *EventNet) publish(t *pubsub.Topic, kind string, data any) {
	msg, err := json.Marshal(map[string]any{"type": kind, "data": data})
	if err != nil {
		if n.log != nil {
			n.log.Warnw("event_marshal_failed", "type", kind, "err", err)
		}
		return
	}
	if err := t.Publish(context.Background(), msg); err != nil && n.log != nil {
		n.log.Warnw("event_publish_failed", "type", kind, "err", err)
	}
}

// implement ledger.Notifier

func (n *EventNet) OrderCreated(ev ledger.OrderCreated) {
	n.publish(n.tOrders, "order_created", ev)
}

func (n *EventNet) StatusChanged(ev ledger.StatusChanged) {
	n.publish(n.tStatus, "status_changed", ev)
}

func (n *EventNet) OrderCancelled(ev ledger.OrderCancelled) {
	n.publish(n.tOrders, "order_cancelled", ev)
}

var _ ledger.Notifier = (*EventNet)(nil)

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}
