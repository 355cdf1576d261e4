package payment

import (
	"context"
	"fmt"
	"sync"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/ports/adapter"
)

var _ adapter.BillingGateway = (*NoopGateway)(nil)

// NoopGateway is an in-memory gateway for local runs without a Stripe key.
type NoopGateway struct {
	mu   sync.Mutex
	seq  int64
	subs map[string]*adapter.ProcessorSubscription
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{subs: make(map[string]*adapter.ProcessorSubscription)}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_noop_%d", prefix, g.seq)
}

func (g *NoopGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next("cus"), nil
}

func (g *NoopGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("cs")
	return &adapter.CheckoutSession{ID: id, URL: "https://example.test/checkout/" + id}, nil
}

// Put registers a subscription for GetSubscription.
func (g *NoopGateway) Put(s adapter.ProcessorSubscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs[s.ID] = &s
}

func (g *NoopGateway) GetSubscription(ctx context.Context, id string) (*adapter.ProcessorSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}
