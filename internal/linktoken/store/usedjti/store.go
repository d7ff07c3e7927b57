// Package usedjti records link-token IDs that have already been exchanged,
// enforcing the single-use property of auth links.
package usedjti

import (
	"context"
	"time"
)

// Store is the single-use ledger port.
//
// MarkUsed records jti atomically and reports whether this call was the
// first use. A false result with nil error means the token was already
// spent. Entries expire after ttl; a token never needs to stay in the
// ledger longer than its own lifetime.
type Store interface {
	MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}
