package domain

import "context"

// Ledger stores payment records keyed by the MD5 of the QR payload.
type Ledger interface {
	Save(ctx context.Context, p Payment) error
	Get(ctx context.Context, md5 string) (Payment, error)
	// GetByShortHash resolves the fallback lookup key. When two payments
	// share a short hash, the first one registered wins.
	GetByShortHash(ctx context.Context, shortHash string) (Payment, error)
	List(ctx context.Context, limit int) ([]Payment, error)
	// SetStatus moves a payment to the given status unless it is already
	// terminal. Returns ErrTerminalStatus when the transition is refused.
	SetStatus(ctx context.Context, md5 string, status Status) error
	// MarkCompleted is SetStatus(completed) plus the settlement details.
	MarkCompleted(ctx context.Context, md5 string, s Settlement) error
	SetDeeplink(ctx context.Context, md5 string, url string) error
	// Pending returns payments still worth re-checking (pending or error).
	Pending(ctx context.Context) ([]Payment, error)
	Purge(ctx context.Context) error
	Name() string
}

// SettlementClient talks to the provider's open API.
type SettlementClient interface {
	GenerateDeeplink(ctx context.Context, qr string) (string, error)
	CheckByMD5(ctx context.Context, md5 string) (Settlement, error)
	CheckByShortHash(ctx context.Context, shortHash string, amount float64, currency string) (Settlement, error)
	RenewToken(ctx context.Context, email string) (string, error)
}
