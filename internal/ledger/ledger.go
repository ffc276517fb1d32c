// Package ledger records which (sender, timestamp) pairs have already been
// forwarded so that reruns do not send the same message twice.
//
// Stores are read-modify-write without locking. Running two instances
// against the same ledger at once can lose entries.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mailforward/internal/model"
)

// ErrCorrupt is returned when stored ledger content cannot be decoded.
var ErrCorrupt = errors.New("ledger is corrupt")

// Ledger is the dedup record of forwarded messages.
type Ledger interface {
	// IsProcessed reports whether the pair was recorded by an earlier
	// MarkProcessed.
	IsProcessed(ctx context.Context, sender string, timestamp int64) (bool, error)

	// MarkProcessed records the pair.
	MarkProcessed(ctx context.Context, sender string, timestamp int64) error
}

// Open returns the ledger selected by cfg. In debug mode the returned
// ledger never reads or writes storage. The returned close function must
// be called when the ledger is no longer needed.
func Open(cfg model.LedgerConfig) (Ledger, func() error, error) {
	noop := func() error { return nil }

	if cfg.Debug {
		return Disabled{}, noop, nil
	}

	switch cfg.Backend {
	case model.LedgerJSON, "":
		return NewJSONFile(cfg.Path), noop, nil
	case model.LedgerSQLite:
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// Disabled is the debug-mode ledger: nothing is ever processed and
// nothing is recorded.
type Disabled struct{}

// IsProcessed always reports false.
func (Disabled) IsProcessed(context.Context, string, int64) (bool, error) {
	return false, nil
}

// MarkProcessed does nothing.
func (Disabled) MarkProcessed(context.Context, string, int64) error {
	return nil
}
