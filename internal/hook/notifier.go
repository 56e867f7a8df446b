// Package hook delivers change notifications to external endpoints over
// JSON-RPC after documents were written or deleted.
package hook

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MethodDocumentsChanged is the JSON-RPC method of every notification.
const MethodDocumentsChanged = "documents.changed"

// Change describes one reconciliation that wrote to a container.
type Change struct {
	Database      string    `json:"database"`
	Container     string    `json:"container"`
	Operation     string    `json:"operation"`
	Count         int       `json:"count"`
	RequestCharge float64   `json:"request_charge"`
	At            time.Time `json:"at"`
}

// Notifier fans a change out to every configured endpoint. Delivery is
// asynchronous; failures are logged and never reach the writer.
type Notifier struct {
	endpoints []string
	client    *Client
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewNotifier(endpoints []string, client *Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		endpoints: endpoints,
		client:    client,
		logger:    logger,
	}
}

// DocumentsChanged sends a documents.changed notification to each endpoint
// on its own goroutine.
func (n *Notifier) DocumentsChanged(c Change) {
	if n == nil || len(n.endpoints) == 0 || c.Count == 0 {
		return
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	for _, endpoint := range n.endpoints {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			resp, err := n.client.Call(context.Background(), endpoint, MethodDocumentsChanged, c)
			if err != nil {
				n.logger.Error("change notification failed", "endpoint", endpoint, "error", err)
				return
			}
			if resp.Error != nil {
				n.logger.Error("change notification rejected", "endpoint", endpoint, "error", resp.Error)
			}
		}()
	}
}

// Wait blocks until every notification in flight has been delivered or
// has failed.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
