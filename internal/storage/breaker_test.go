package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ryanbastic/go-docsync/internal/circuitbreaker"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
)

var errBackend = errors.New("backend unavailable")

type failingContainer struct {
	err   error
	calls int
}

func (f *failingContainer) Metadata(ctx context.Context) (*ContainerMetadata, error) {
	return &ContainerMetadata{Name: "x"}, nil
}

func (f *failingContainer) Query(ctx context.Context, text string, opts QueryOptions) (*Page, error) {
	f.calls++
	return nil, f.err
}

func (f *failingContainer) Upsert(ctx context.Context, rec *record.Record, key partition.Key) (*WriteResult, error) {
	f.calls++
	return nil, f.err
}

func (f *failingContainer) Delete(ctx context.Context, id string, key partition.Key) (*WriteResult, error) {
	f.calls++
	return nil, f.err
}

func TestWithBreaker_OpensOnBackendErrors(t *testing.T) {
	inner := &failingContainer{err: errBackend}
	c := WithBreaker(inner, circuitbreaker.New(2, time.Hour, circuitbreaker.WithIgnoredErrors(BreakerErrors...)))
	ctx := context.Background()

	c.Query(ctx, "SELECT * FROM c", QueryOptions{})
	c.Upsert(ctx, record.New(), nil)
	_, err := c.Delete(ctx, "1", nil)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("got %v, want ErrCircuitOpen", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestWithBreaker_NotFoundDoesNotTrip(t *testing.T) {
	inner := &failingContainer{err: ErrNotFound}
	c := WithBreaker(inner, circuitbreaker.New(1, time.Hour, circuitbreaker.WithIgnoredErrors(BreakerErrors...)))

	for i := 0; i < 3; i++ {
		if _, err := c.Delete(context.Background(), "1", nil); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d: got %v, want ErrNotFound", i, err)
		}
	}
}
