package tx

import "context"

// Manager scopes a settlement so every adapter write inside fn commits or rolls back together.
// Adapters find the transaction through ctx.
type Manager interface {
	Within(ctx context.Context, fn func(context.Context) error) error
}

// NoopManager runs fn directly. It backs usecases wired without a database.
type NoopManager struct{}

var _ Manager = NoopManager{}

func (NoopManager) Within(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// OrNoop keeps a nil manager out of the call sites.
func OrNoop(m Manager) Manager {
	if m == nil {
		return NoopManager{}
	}
	return m
}
