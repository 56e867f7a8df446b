package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ryanbastic/go-docsync/internal/config"
	"github.com/ryanbastic/go-docsync/internal/session"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Faint(true)
)

func newQueryCmd() *cobra.Command {
	var (
		database  string
		container string
		req       session.Request
	)
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Run one query and print the result grid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Query = args[0]
			}
			cfg := config.Load()
			if cfg.LogLevel == "info" {
				cfg.LogLevel = "warn"
			}
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

			sessions := session.NewManager(st.catalog, sessionOptions(cfg), normalizerOptions(cfg), nil, logger)
			s, err := sessions.Open(ctx, database, container)
			if err != nil {
				return err
			}
			defer func() { _ = sessions.Close(s.ID()) }()

			status, err := s.Execute(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGrid(s.Grid(0, 0)))
			fmt.Fprintln(cmd.OutOrStdout(), footerStyle.Render(statusLine(status)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&database, "database", "d", "", "database name")
	cmd.Flags().StringVarP(&container, "container", "c", "", "container name")
	cmd.Flags().BoolVar(&req.Paging, "paging", false, "fetch only the first page")
	cmd.Flags().IntVar(&req.MaxCount, "max-count", 0, "result cap; negative disables it")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 0, "records per page")
	_ = cmd.MarkFlagRequired("database")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

func renderGrid(g *session.Grid) string {
	headers := make([]string, len(g.Columns))
	for i, c := range g.Columns {
		headers[i] = c.Name
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(g.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func statusLine(st *session.Status) string {
	line := fmt.Sprintf("%d rows, %.2f RU in %d page(s)", st.Rows, st.Metrics.RequestCharge, st.Metrics.PageCount)
	if st.HasMore {
		line += ", more available"
	}
	if st.Error != "" {
		line += ", error: " + st.Error
	}
	return line
}
