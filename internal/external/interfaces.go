// Package external provides the anti-corruption layer between the accounting
// domain logic and third-party vendor APIs. Outbound HTTP calls are routed
// through the BaseClient, which enforces consistent resilience patterns:
// circuit breaking, retries with exponential backoff, and error mapping.
package external

import (
	"context"

	"accounting/internal/types"
)

// EmailProvider abstracts the email delivery service. Implementations
// transmit pre-rendered content (Subject, BodyText, BodyHTML).
type EmailProvider interface {
	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
