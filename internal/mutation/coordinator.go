// Package mutation writes edited rows back to a container: point upserts
// and deletes, reconciliation of pending edits, and bounded-concurrency
// batch deletes.
package mutation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/ryanbastic/go-docsync/internal/metrics"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/storage"
	"github.com/ryanbastic/go-docsync/internal/table"
)

// maxSampledErrors caps the error messages a batch result carries.
const maxSampledErrors = 5

// Outcome reports the cost of one point operation.
type Outcome struct {
	RequestCharge float64       `json:"request_charge"`
	Elapsed       time.Duration `json:"elapsed"`
}

// View is the row source a batch operation reads from. Only the caller's
// goroutine touches it.
type View interface {
	RowRecord(row int) (*record.Record, error)
	PendingRows() []table.RowID
	RecordByID(id table.RowID) (*record.Record, error)
	ClearDirty()
}

// RefreshFunc reloads the synchronized view after a batch.
type RefreshFunc func(ctx context.Context) error

// Coordinator issues writes for one container.
type Coordinator struct {
	container   storage.Container
	paths       []partition.Path
	layout      storage.Layout
	kind        string
	concurrency int
	logger      *slog.Logger
}

// New creates a coordinator. concurrency bounds in-flight batch deletes;
// zero or less uses the number of logical CPUs.
func New(c storage.Container, meta *storage.ContainerMetadata, concurrency int, logger *slog.Logger) (*Coordinator, error) {
	paths, err := partition.ParsePaths(meta.PartitionKeyPaths)
	if err != nil {
		return nil, fmt.Errorf("container %s/%s: %w", meta.Database, meta.Name, err)
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Coordinator{
		container:   c,
		paths:       paths,
		layout:      meta.Layout,
		kind:        string(meta.Kind),
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Paths returns the container's partition key paths.
func (m *Coordinator) Paths() []partition.Path { return m.paths }

// ResolveKey extracts the partition key of rec.
func (m *Coordinator) ResolveKey(rec *record.Record) (partition.Key, error) {
	return partition.Resolve(rec, m.paths)
}

// Upsert writes rec. An unresolvable partition key fails before any call
// to the store.
func (m *Coordinator) Upsert(ctx context.Context, rec *record.Record) (*Outcome, error) {
	key, err := m.ResolveKey(rec)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := m.container.Upsert(ctx, rec, key)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveMutation(m.kind, "upsert", 0, err)
		return nil, err
	}
	metrics.ObserveMutation(m.kind, "upsert", res.RequestCharge, nil)
	return &Outcome{RequestCharge: res.RequestCharge, Elapsed: elapsed}, nil
}

// Delete removes the record with id under key.
func (m *Coordinator) Delete(ctx context.Context, id string, key partition.Key) (*Outcome, error) {
	start := time.Now()
	res, err := m.container.Delete(ctx, id, key)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveMutation(m.kind, "delete", 0, err)
		return nil, err
	}
	metrics.ObserveMutation(m.kind, "delete", res.RequestCharge, nil)
	return &Outcome{RequestCharge: res.RequestCharge, Elapsed: elapsed}, nil
}

// DeleteRecord removes rec, addressed by its id field and partition key.
func (m *Coordinator) DeleteRecord(ctx context.Context, rec *record.Record) (*Outcome, error) {
	target, err := m.target(rec)
	if err != nil {
		return nil, err
	}
	return m.Delete(ctx, target.id, target.key)
}

type deleteTarget struct {
	row int
	id  string
	key partition.Key
}

func (m *Coordinator) target(rec *record.Record) (deleteTarget, error) {
	id, ok := rec.ID(m.layout.IDField)
	if !ok {
		return deleteTarget{}, fmt.Errorf("%w: field %q", storage.ErrMissingID, m.layout.IDField)
	}
	key, err := m.ResolveKey(rec)
	if err != nil {
		return deleteTarget{}, err
	}
	return deleteTarget{id: id, key: key}, nil
}
