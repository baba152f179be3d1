// Package gate holds the transport-agnostic contracts shared by the access
// control and relay components: the outbound messaging seam and the tagged
// action variant carried in inline-button payloads.
package gate

import (
	"context"
	"errors"
)

// ErrNotAdmin is returned by admin-gated operations when the acting identity
// is not the configured admin. No state is mutated in that case.
var ErrNotAdmin = errors.New("gate: sender is not the admin")

// Button describes one inline action offered to the recipient.
type Button struct {
	Label  string
	Action Action
}

// Messenger delivers outbound messages over a chat transport. Deliveries are
// fire-and-forget from the state machine's perspective: a transport failure
// is logged by the adapter and never fed back into state.
type Messenger interface {
	SendText(ctx context.Context, recipient int64, text string) error
	SendMarkdown(ctx context.Context, recipient int64, text string) error
	SendChoice(ctx context.Context, recipient int64, text string, buttons []Button) error
}
