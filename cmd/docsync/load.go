package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ryanbastic/go-docsync/internal/config"
	"github.com/ryanbastic/go-docsync/internal/mutation"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newLoadCmd() *cobra.Command {
	var (
		database    string
		container   string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Upsert documents from a JSON array or newline-delimited JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			docs, err := splitDocuments(data)
			if err != nil {
				return err
			}

			cfg := config.Load()
			logger := newLogger(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := st.catalog.Container(ctx, database, container)
			if err != nil {
				return err
			}
			n, charge, err := loadDocuments(ctx, c, docs, concurrency, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d of %d documents, %.2f RU\n", n, len(docs), charge)
			return err
		},
	}
	cmd.Flags().StringVarP(&database, "database", "d", "", "database name")
	cmd.Flags().StringVarP(&container, "container", "c", "", "container name")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "parallel upserts")
	_ = cmd.MarkFlagRequired("database")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

// splitDocuments accepts a JSON array of objects or a stream of objects.
func splitDocuments(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("parse document array: %w", err)
		}
		return docs, nil
	}

	var docs []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var doc json.RawMessage
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, doc)
	}
}

// loadDocuments upserts every document, stopping at the first failure.
// It returns how many were written and their total charge.
func loadDocuments(ctx context.Context, c storage.Container, docs []json.RawMessage, concurrency int, logger *slog.Logger) (int, float64, error) {
	meta, err := c.Metadata(ctx)
	if err != nil {
		return 0, 0, err
	}
	coord, err := mutation.New(c, meta, concurrency, logger)
	if err != nil {
		return 0, 0, err
	}

	recs := make([]*record.Record, len(docs))
	for i, d := range docs {
		if recs[i], err = record.Parse(d); err != nil {
			return 0, 0, fmt.Errorf("document %d: %w", i+1, err)
		}
	}

	var (
		mu      sync.Mutex
		written int
		charge  float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, rec := range recs {
		g.Go(func() error {
			out, err := coord.Upsert(gctx, rec)
			if err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
			mu.Lock()
			written++
			charge += out.RequestCharge
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return written, charge, err
}
