package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movement describes one balance change booked through Credit or Debit.
type Movement struct {
	UserID      string
	Amount      decimal.Decimal
	Kind        EntryKind
	ReferenceID string
	Description string
	Metadata    map[string]any
}

// now is truncated to microseconds so hashes survive a round trip through postgres.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
