package ports

import "context"

// StateStore issues OAuth state nonces and consumes each one at most once.
type StateStore interface {
	// Issue creates and stores a fresh nonce for shop, replacing any earlier one.
	Issue(ctx context.Context, shop string) (string, error)
	// Consume removes the nonce stored for shop and reports whether it matched state.
	Consume(ctx context.Context, shop, state string) (bool, error)
}
