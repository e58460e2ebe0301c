package external

import (
	"context"

	"safetyreports/internal/types"
)

// EmailProvider transmits one fully assembled message. msg.To holds the final
// recipients; any override has already been applied by the caller. The
// returned ID is the provider's message identifier.
type EmailProvider interface {
	Send(ctx context.Context, msg types.EmailMessage) (providerMsgID string, err error)
}
