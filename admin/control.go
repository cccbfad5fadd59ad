// Package admin is the authority wrapper for forced disconnects. It holds
// no state of its own; it exists so every early termination records which
// operator forced it. Whether a caller may disconnect at all is decided by
// an external policy layer, not here.
package admin

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/open-rails/netpass/grant"
)

// ErrOperatorRequired rejects a disconnect with no operator attribution.
var ErrOperatorRequired = errors.New("operator required")

// ReasonDisconnect is the audit reason recorded on admin terminations.
const ReasonDisconnect = "admin_disconnect"

type Control struct {
	grants *grant.Manager
}

func NewControl(grants *grant.Manager) *Control {
	return &Control{grants: grants}
}

// Disconnect terminates an Active grant immediately. The expiry scheduler's
// later wake-up for the same grant becomes a no-op.
func (c *Control) Disconnect(ctx context.Context, grantID uuid.UUID, operator string) error {
	if operator == "" {
		return ErrOperatorRequired
	}
	return c.grants.Terminate(ctx, grantID, operator, ReasonDisconnect)
}
