package domain

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusError marks a payment whose last settlement lookup hit a
	// recoverable problem (timeout, 5xx, bad token). The reconciler picks
	// these up again on the next sweep.
	StatusError Status = "error"
)

// Terminal reports whether a status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Payment struct {
	BillNumber  string    `json:"billNumber"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	QRString    string    `json:"qrString"`
	MD5         string    `json:"md5"`
	ShortHash   string    `json:"shortHash"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	DeeplinkURL string    `json:"deeplinkUrl,omitempty"`

	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	FromAccount     string     `json:"fromAccount,omitempty"`
}

// Settlement is the result of one provider lookup: the status the payment
// should move to plus the settlement details when the provider found it.
type Settlement struct {
	Status          Status
	TransactionHash string
	FromAccount     string
	SettledAt       *time.Time
}
