// Package schema tracks which optional database shapes are present.
// Deployments migrate unevenly: some lack the subject_links table, some
// lack the memories.fact_type column. Stores probe once and degrade
// gracefully for the rest of the process lifetime.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/lib/pq"
)

// State is the memoized outcome of a capability probe.
type State int

const (
	StateUnknown State = iota
	StateSupported
	StateUnsupported
)

// Probe memoizes a single yes/no schema question.
type Probe struct {
	name   string
	check  func(ctx context.Context) (bool, error)
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// NewProbe builds a probe around a check function. A nil check means
// always supported, which is what the memory stores want.
func NewProbe(name string, check func(ctx context.Context) (bool, error), logger *slog.Logger) *Probe {
	return &Probe{name: name, check: check, logger: logger}
}

// Supported answers the probe, running the check at most once. Probe
// failures count as unsupported so callers degrade instead of erroring.
func (p *Probe) Supported(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUnknown {
		return p.state == StateSupported
	}
	if p.check == nil {
		p.state = StateSupported
		return true
	}

	ok, err := p.check(ctx)
	if err != nil {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "schema probe failed, treating as unsupported",
				"probe", p.name,
				"error", err.Error(),
			)
		}
		p.state = StateUnsupported
		return false
	}
	if ok {
		p.state = StateSupported
	} else {
		p.state = StateUnsupported
	}
	return ok
}

// MarkUnsupported pins the probe to unsupported. Stores call this when a
// query fails with undefined-table/column after the probe said otherwise.
func (p *Probe) MarkUnsupported() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateUnsupported
}

// Capabilities bundles the optional shapes the stores care about.
type Capabilities struct {
	// FactType reports whether memories.fact_type exists.
	FactType *Probe
	// SubjectLinks reports whether the subject_links table exists.
	SubjectLinks *Probe
}

// Detect wires probes against a live database.
func Detect(db *sql.DB, logger *slog.Logger) *Capabilities {
	return &Capabilities{
		FactType: NewProbe("memories.fact_type", func(ctx context.Context) (bool, error) {
			var one int
			err := db.QueryRowContext(ctx,
				`SELECT 1 FROM information_schema.columns
				 WHERE table_name = 'memories' AND column_name = 'fact_type'`,
			).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return true, nil
		}, logger),
		SubjectLinks: NewProbe("subject_links", func(ctx context.Context) (bool, error) {
			var present bool
			err := db.QueryRowContext(ctx,
				`SELECT to_regclass('subject_links') IS NOT NULL`,
			).Scan(&present)
			if err != nil {
				return false, err
			}
			return present, nil
		}, logger),
	}
}

// Static returns capabilities pinned to supported, for memory stores.
func Static() *Capabilities {
	return &Capabilities{
		FactType:     NewProbe("memories.fact_type", nil, nil),
		SubjectLinks: NewProbe("subject_links", nil, nil),
	}
}

// IsUndefinedTable reports SQLSTATE 42P01.
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

// IsUndefinedColumn reports SQLSTATE 42703.
func IsUndefinedColumn(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42703"
}
