package mutation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ryanbastic/go-docsync/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BatchResult aggregates a batch operation. Row failures never abort the
// batch; they are counted and the first few messages are kept.
type BatchResult struct {
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Errors        []string      `json:"errors,omitempty"`
	MoreErrors    int           `json:"more_errors,omitempty"`
	RequestCharge float64       `json:"request_charge"`
	Elapsed       time.Duration `json:"elapsed"`
	RefreshErr    error         `json:"-"`
}

func (r *BatchResult) fail(err error) {
	r.Failed++
	if len(r.Errors) < maxSampledErrors {
		r.Errors = append(r.Errors, err.Error())
		return
	}
	r.MoreErrors++
}

type rowOutcome struct {
	charge float64
	err    error
}

// BatchDelete deletes the given view rows. Records and keys are built on
// the calling goroutine, highest row first; only the store calls run
// concurrently, at most the coordinator's concurrency at a time. refresh
// runs once, after every delete has settled.
func (m *Coordinator) BatchDelete(ctx context.Context, view View, rows []int, refresh RefreshFunc) *BatchResult {
	start := time.Now()
	res := &BatchResult{}

	ordered := uniqueDescending(rows)
	var targets []deleteTarget
	for _, row := range ordered {
		rec, err := view.RowRecord(row)
		if err != nil {
			res.fail(fmt.Errorf("row %d: %w", row, err))
			continue
		}
		t, err := m.target(rec)
		if err != nil {
			res.fail(fmt.Errorf("row %d: %w", row, err))
			continue
		}
		t.row = row
		targets = append(targets, t)
	}

	outcomes := make([]rowOutcome, len(targets))
	sem := semaphore.NewWeighted(int64(m.concurrency))
	var g errgroup.Group

	for i, t := range targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(targets); j++ {
				outcomes[j].err = err
			}
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			out, err := m.Delete(ctx, t.id, t.key)
			if err != nil {
				outcomes[i].err = fmt.Errorf("row %d (id %s): %w", t.row, t.id, err)
				return nil
			}
			outcomes[i].charge = out.RequestCharge
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			res.fail(o.err)
			continue
		}
		res.Succeeded++
		res.RequestCharge += o.charge
	}

	if refresh != nil {
		res.RefreshErr = refresh(ctx)
	}
	res.Elapsed = time.Since(start)
	metrics.ObserveBatch("batch_delete", res.Succeeded, res.Failed)
	m.logger.Info("batch delete finished",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"request_charge", res.RequestCharge,
		"elapsed", res.Elapsed,
	)
	return res
}

// BatchUpdate upserts every pending row of view in sequence. When at least
// one row succeeded, the dirty marks are cleared and refresh runs; when all
// rows fail the edits stay pending.
func (m *Coordinator) BatchUpdate(ctx context.Context, view View, refresh RefreshFunc) *BatchResult {
	start := time.Now()
	res := &BatchResult{}

	for _, id := range view.PendingRows() {
		rec, err := view.RecordByID(id)
		if err != nil {
			res.fail(err)
			continue
		}
		out, err := m.Upsert(ctx, rec)
		if err != nil {
			if rid, ok := rec.ID(m.layout.IDField); ok {
				err = fmt.Errorf("id %s: %w", rid, err)
			}
			res.fail(err)
			continue
		}
		res.Succeeded++
		res.RequestCharge += out.RequestCharge
	}

	if res.Succeeded > 0 {
		view.ClearDirty()
		if refresh != nil {
			res.RefreshErr = refresh(ctx)
		}
	}
	res.Elapsed = time.Since(start)
	metrics.ObserveBatch("batch_update", res.Succeeded, res.Failed)
	m.logger.Info("batch update finished",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"request_charge", res.RequestCharge,
		"elapsed", res.Elapsed,
	)
	return res
}

func uniqueDescending(rows []int) []int {
	seen := make(map[int]bool, len(rows))
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
