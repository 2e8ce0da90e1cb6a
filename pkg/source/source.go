// Package source defines the contract every tabular backend implements and
// the shared pieces backends are built from: configuration, errors, record
// assembly and a bounded pool for blocking work.
package source

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/leapstack-labs/leapview/pkg/navigation"
)

// Defaults shared by the concrete sources.
const (
	// DefaultWindowSize is the number of rows QueryAt returns around a position.
	DefaultWindowSize = 1000
	// DefaultSampleSize is the number of rows sampled for type inference.
	DefaultSampleSize = 1000
	// MaxSampleSize caps SampleSize regardless of configuration.
	MaxSampleSize = 5000
	// CancelCheckInterval is how many records a scan reads between context checks.
	CancelCheckInterval = 4096
)

// DataSource is a read-only, position-addressable table.
//
// Records returned by the Query methods are owned by the caller, who must
// Release them. Implementations are safe for concurrent use.
type DataSource interface {
	// Schema returns the column layout. It is fixed for the lifetime of the source.
	Schema() *arrow.Schema

	// NavigationSpec describes the addressable space of the source.
	NavigationSpec(ctx context.Context) (navigation.Spec, error)

	// QueryAt returns a window of rows centered on pos.
	QueryAt(ctx context.Context, pos navigation.Position) (arrow.Record, error)

	// QueryRange returns the rows in [r.Start, r.End).
	QueryRange(ctx context.Context, r navigation.Range) (arrow.Record, error)

	// QueryAll returns every row.
	QueryAll(ctx context.Context) (arrow.Record, error)

	// RowCount returns the total number of addressable rows.
	RowCount(ctx context.Context) (int, error)

	// SourceName returns a stable display name.
	SourceName() string
}

// Window returns the row interval of a window of size rows centered on
// center, clamped to [0, rows).
func Window(center, rows, size int) (start, end int) {
	half := size / 2
	start = max(center-half, 0)
	end = min(center+half, rows)
	if start > end {
		start = end
	}
	return start, end
}

// RowResolver maps a position to a row index.
type RowResolver func(navigation.Position) (int, error)

// SequentialRow resolves Sequential positions and rejects the others.
func SequentialRow(pos navigation.Position) (int, error) {
	if pos.Kind != navigation.KindSequential {
		return 0, fmt.Errorf("%w: %s on a row-indexed source", ErrInvalidPosition, pos)
	}
	if pos.Index < 0 {
		return 0, fmt.Errorf("%w: negative row %d", ErrInvalidPosition, pos.Index)
	}
	return pos.Index, nil
}

// ResolveRange turns r into a row interval using resolve. The end is
// clamped to rows; a start past the end is rejected.
func ResolveRange(r navigation.Range, rows int, resolve RowResolver) (start, end int, err error) {
	if !r.SameKind() {
		return 0, 0, fmt.Errorf("%w: %s mixes position kinds", ErrInvalidRange, r)
	}
	if start, err = resolve(r.Start); err != nil {
		return 0, 0, err
	}
	if end, err = resolve(r.End); err != nil {
		return 0, 0, err
	}
	end = min(end, rows)
	if start > end {
		return 0, 0, fmt.Errorf("%w: start %d is past end %d", ErrInvalidRange, start, end)
	}
	return start, end, nil
}
