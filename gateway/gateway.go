// Package gateway defines the external mobile-money gateway contract. The
// provider's wire protocol is out of scope; netpass only needs an
// asynchronous request/ack plus a callback carrying one of two outcomes.
package gateway

import (
	"context"

	"github.com/google/uuid"
)

// Outcome is a terminal result delivered by the gateway callback.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// CallbackFunc delivers a gateway outcome for a transaction. Real deployments
// route the provider's webhook into this; the simulator calls it directly.
// Delivery is not guaranteed and may repeat; the payment processor is
// responsible for idempotency and for the timeout path.
type CallbackFunc func(transactionID uuid.UUID, outcome Outcome)

// Gateway initiates a payment request against the provider (e.g. an STK
// push to the subscriber's phone). RequestPayment returns once the provider
// acknowledges the request; the outcome arrives later via callback, if at
// all. A non-nil error means the provider could not even be reached.
type Gateway interface {
	RequestPayment(ctx context.Context, phone string, amount int64, transactionID uuid.UUID) error
}
