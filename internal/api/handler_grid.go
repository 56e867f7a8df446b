package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-docsync/internal/session"
	"github.com/ryanbastic/go-docsync/internal/table"
)

// --- Huma Input/Output types ---

type GetRowsInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Offset    int    `query:"offset" doc:"First row to return" minimum:"0"`
	Limit     int    `query:"limit" doc:"Maximum rows to return; 0 returns all" minimum:"0"`
}

type GetRowsOutput struct {
	Body *session.Grid
}

type CellInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Row       int    `path:"row" doc:"Row in the current view"`
	Column    int    `path:"column" doc:"Column index"`
}

type CellResponse struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Kind   string `json:"kind" doc:"Value kind" example:"string"`
	Text   string `json:"text" doc:"Display text; empty for null"`
}

type GetCellOutput struct {
	Body CellResponse
}

type SetCellInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Row       int    `path:"row" doc:"Row in the current view"`
	Column    int    `path:"column" doc:"Column index"`
	Body      struct {
		Text string `json:"text" doc:"New cell text; blank stores null"`
	}
}

type SetCellOutput struct {
	Body struct {
		Changed bool `json:"changed" doc:"Whether the stored value changed"`
		Pending int  `json:"pending" doc:"Rows with unsaved edits"`
	}
}

type FilterInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Body      struct {
		Conditions []table.Condition `json:"conditions" doc:"Conjunction of conditions; empty clears the filter"`
	}
}

type SortInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Body      struct {
		Columns []table.SortSpec `json:"columns" doc:"Sort keys, most significant first" minItems:"1"`
	}
}

type RowInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Row       int    `path:"row" doc:"Row in the current view"`
}

type DescribeKeyOutput struct {
	Body struct {
		Description string `json:"description" doc:"Id and partition key of the row"`
	}
}

// --- Handler ---

type GridHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

func NewGridHandler(sessions *session.Manager, logger *slog.Logger) *GridHandler {
	return &GridHandler{sessions: sessions, logger: logger}
}

func registerGridRoutes(api huma.API, h *GridHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-rows",
		Method:      http.MethodGet,
		Path:        "/v1/sessions/{session_id}/rows",
		Summary:     "Read rows of the current view",
		Tags:        []string{"grid"},
	}, h.GetRows)

	huma.Register(api, huma.Operation{
		OperationID: "get-cell",
		Method:      http.MethodGet,
		Path:        "/v1/sessions/{session_id}/cells/{row}/{column}",
		Summary:     "Read one cell",
		Tags:        []string{"grid"},
	}, h.GetCell)

	huma.Register(api, huma.Operation{
		OperationID: "set-cell",
		Method:      http.MethodPut,
		Path:        "/v1/sessions/{session_id}/cells/{row}/{column}",
		Summary:     "Edit one cell",
		Tags:        []string{"grid"},
	}, h.SetCell)

	huma.Register(api, huma.Operation{
		OperationID: "filter",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/filter",
		Summary:     "Replace the row filter",
		Tags:        []string{"grid"},
	}, h.Filter)

	huma.Register(api, huma.Operation{
		OperationID: "sort",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/sort",
		Summary:     "Sort the current view",
		Tags:        []string{"grid"},
	}, h.Sort)

	huma.Register(api, huma.Operation{
		OperationID: "describe-key",
		Method:      http.MethodGet,
		Path:        "/v1/sessions/{session_id}/rows/{row}/key",
		Summary:     "Describe the id and partition key of a row",
		Tags:        []string{"grid"},
	}, h.DescribeKey)
}

func (h *GridHandler) GetRows(ctx context.Context, input *GetRowsInput) (*GetRowsOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "get rows", err)
	}
	return &GetRowsOutput{Body: s.Grid(input.Offset, input.Limit)}, nil
}

func (h *GridHandler) GetCell(ctx context.Context, input *CellInput) (*GetCellOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "get cell", err)
	}
	v, err := s.Cell(input.Row, input.Column)
	if err != nil {
		return nil, apiError(h.logger, "get cell", err)
	}
	return &GetCellOutput{Body: CellResponse{
		Row:    input.Row,
		Column: input.Column,
		Kind:   v.Kind().String(),
		Text:   v.Text(),
	}}, nil
}

func (h *GridHandler) SetCell(ctx context.Context, input *SetCellInput) (*SetCellOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "set cell", err)
	}
	changed, err := s.SetCell(input.Row, input.Column, input.Body.Text)
	if err != nil {
		return nil, apiError(h.logger, "set cell", err)
	}
	out := &SetCellOutput{}
	out.Body.Changed = changed
	out.Body.Pending = s.Status().Pending
	return out, nil
}

func (h *GridHandler) Filter(ctx context.Context, input *FilterInput) (*StatusOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "filter", err)
	}
	st, err := s.Filter(table.Filter(input.Body.Conditions))
	if err != nil {
		return nil, apiError(h.logger, "filter", err)
	}
	return &StatusOutput{Body: st}, nil
}

func (h *GridHandler) Sort(ctx context.Context, input *SortInput) (*StatusOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "sort", err)
	}
	st, err := s.Sort(input.Body.Columns...)
	if err != nil {
		return nil, apiError(h.logger, "sort", err)
	}
	return &StatusOutput{Body: st}, nil
}

func (h *GridHandler) DescribeKey(ctx context.Context, input *RowInput) (*DescribeKeyOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "describe key", err)
	}
	text, err := s.DescribeKey(input.Row)
	if err != nil {
		return nil, apiError(h.logger, "describe key", err)
	}
	out := &DescribeKeyOutput{}
	out.Body.Description = text
	return out, nil
}
