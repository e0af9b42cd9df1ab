// Package bulk runs a homogeneous batch of independent units concurrently and
// aggregates per-unit results into a single outcome. One unit's failure never
// cancels, blocks, or aborts any sibling unit.
package bulk

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maraichr/pictor/pkg/apierr"
)

const defaultMaxConcurrency = 8

// Item is one unit of work submitted to a batch. Ref is the opaque reference
// reported back in the outcome (a file name, a record id).
type Item interface {
	Ref() string
}

// Op processes one item. Returning an error marks that unit failed; the error
// is captured into the unit outcome and never propagates past the engine.
// Ops are responsible for converting collaborator failures into errors here;
// the engine adds no recovery barrier of its own.
type Op[T Item] func(ctx context.Context, item T) (any, error)

// UnitOutcome is the resolved result for one item. Exactly one of
// Result/Error is populated.
type UnitOutcome struct {
	Ref     string            `json:"ref"`
	Success bool              `json:"success"`
	Result  any               `json:"result,omitempty"`
	Error   *apierr.ErrorBody `json:"error,omitempty"`
}

// Outcome aggregates all unit outcomes for one batch.
// len(Succeeded) + len(Failed) == TotalRequested always holds.
type Outcome struct {
	Succeeded      []UnitOutcome `json:"succeeded"`
	Failed         []UnitOutcome `json:"failed"`
	TotalRequested int           `json:"total_requested"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
}

// Options tunes one engine run.
type Options struct {
	// MaxConcurrency caps simultaneous units. Zero or negative means the
	// default cap; batches are never unbounded.
	MaxConcurrency int
}

// Run executes op for every item concurrently, waits for all units to settle,
// and returns the aggregated outcome. Unit outcomes keep submission order
// within the succeeded and failed lists.
//
// Validation (rejecting empty or oversized batches) is the caller's job and
// happens before Run; an empty item list here yields an empty outcome.
func Run[T Item](ctx context.Context, items []T, op Op[T], opts Options) *Outcome {
	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}

	start := time.Now()

	// Each goroutine owns its pre-allocated slot; no other synchronisation
	// is needed, and a failed unit can never cancel its siblings because the
	// closures never return an error.
	outcomes := make([]UnitOutcome, len(items))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for idx, item := range items {
		eg.Go(func() error {
			result, err := op(egCtx, item)
			if err != nil {
				body := apierr.Describe(err)
				outcomes[idx] = UnitOutcome{Ref: item.Ref(), Error: &body}
				return nil
			}
			outcomes[idx] = UnitOutcome{Ref: item.Ref(), Success: true, Result: result}
			return nil
		})
	}
	_ = eg.Wait()

	out := &Outcome{
		Succeeded:      []UnitOutcome{},
		Failed:         []UnitOutcome{},
		TotalRequested: len(items),
		ElapsedSeconds: time.Since(start).Seconds(),
	}
	for _, u := range outcomes {
		if u.Success {
			out.Succeeded = append(out.Succeeded, u)
		} else {
			out.Failed = append(out.Failed, u)
		}
	}
	return out
}

// HTTPStatus maps an outcome to the response status used identically by every
// bulk entry point: full success, partial success (multi-status), or full
// failure.
func HTTPStatus(o *Outcome) int {
	switch {
	case len(o.Failed) == 0:
		return http.StatusOK
	case len(o.Succeeded) > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}
