package netpasstest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/open-rails/netpass/gateway"
)

// ScriptedGateway is a payment gateway whose outcomes the test drives by
// hand: RequestPayment only records the request, and Deliver fires the
// callback whenever the test decides, including twice, or after a
// transaction already timed out.
type ScriptedGateway struct {
	mu       sync.Mutex
	callback gateway.CallbackFunc
	requests []PaymentRequest
	reject   bool
}

type PaymentRequest struct {
	Phone         string
	Amount        int64
	TransactionID uuid.UUID
}

func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{}
}

// Bind sets the callback target, usually processor.OnGatewayCallback
// wrapped in a context.
func (g *ScriptedGateway) Bind(cb gateway.CallbackFunc) { g.callback = cb }

// Reject makes subsequent RequestPayment calls fail, simulating an
// unreachable provider.
func (g *ScriptedGateway) Reject(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reject = v
}

func (g *ScriptedGateway) RequestPayment(_ context.Context, phone string, amount int64, transactionID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reject {
		return errors.New("scripted gateway: rejecting requests")
	}
	g.requests = append(g.requests, PaymentRequest{Phone: phone, Amount: amount, TransactionID: transactionID})
	return nil
}

// Requests returns a copy of everything requested so far.
func (g *ScriptedGateway) Requests() []PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PaymentRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// Deliver fires the bound callback synchronously.
func (g *ScriptedGateway) Deliver(transactionID uuid.UUID, outcome gateway.Outcome) {
	g.callback(transactionID, outcome)
}
