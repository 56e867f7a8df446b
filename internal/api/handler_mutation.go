package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-docsync/internal/mutation"
	"github.com/ryanbastic/go-docsync/internal/session"
)

// --- Huma Input/Output types ---

type BatchResponse struct {
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty" doc:"First few failure messages"`
	MoreErrors    int      `json:"more_errors,omitempty" doc:"Failures beyond the sampled messages"`
	RequestCharge float64  `json:"request_charge"`
	ElapsedMs     int64    `json:"elapsed_ms"`
	RefreshError  string   `json:"refresh_error,omitempty"`
}

type BatchOutput struct {
	Body BatchResponse
}

type DeleteRowsInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Body      struct {
		Rows []int `json:"rows" doc:"Rows of the current view" minItems:"1"`
	}
}

type OutcomeResponse struct {
	RequestCharge float64 `json:"request_charge"`
	ElapsedMs     int64   `json:"elapsed_ms"`
}

type OutcomeOutput struct {
	Body OutcomeResponse
}

type InsertDocumentInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Body      struct {
		Document json.RawMessage `json:"document" doc:"JSON object to upsert" required:"true"`
	}
}

// --- Handler ---

type MutationHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

func NewMutationHandler(sessions *session.Manager, logger *slog.Logger) *MutationHandler {
	return &MutationHandler{sessions: sessions, logger: logger}
}

func registerMutationRoutes(api huma.API, h *MutationHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "commit",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/commit",
		Summary:     "Write every pending edit",
		Tags:        []string{"mutations"},
	}, h.Commit)

	huma.Register(api, huma.Operation{
		OperationID: "delete-rows",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/rows/delete",
		Summary:     "Delete several rows",
		Tags:        []string{"mutations"},
	}, h.DeleteRows)

	huma.Register(api, huma.Operation{
		OperationID: "upsert-row",
		Method:      http.MethodPut,
		Path:        "/v1/sessions/{session_id}/rows/{row}",
		Summary:     "Write one row",
		Tags:        []string{"mutations"},
	}, h.UpsertRow)

	huma.Register(api, huma.Operation{
		OperationID: "delete-row",
		Method:      http.MethodDelete,
		Path:        "/v1/sessions/{session_id}/rows/{row}",
		Summary:     "Delete one row",
		Tags:        []string{"mutations"},
	}, h.DeleteRow)

	huma.Register(api, huma.Operation{
		OperationID:   "insert-document",
		Method:        http.MethodPost,
		Path:          "/v1/sessions/{session_id}/documents",
		Summary:       "Insert or replace a document",
		Tags:          []string{"mutations"},
		DefaultStatus: http.StatusCreated,
	}, h.InsertDocument)
}

func (h *MutationHandler) Commit(ctx context.Context, input *SessionIDInput) (*BatchOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "commit", err)
	}
	res, err := s.Commit(ctx)
	if err != nil {
		return nil, apiError(h.logger, "commit", err)
	}
	return &BatchOutput{Body: batchToResponse(res)}, nil
}

func (h *MutationHandler) DeleteRows(ctx context.Context, input *DeleteRowsInput) (*BatchOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "delete rows", err)
	}
	res, err := s.DeleteRows(ctx, input.Body.Rows)
	if err != nil {
		return nil, apiError(h.logger, "delete rows", err)
	}
	return &BatchOutput{Body: batchToResponse(res)}, nil
}

func (h *MutationHandler) UpsertRow(ctx context.Context, input *RowInput) (*OutcomeOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "upsert row", err)
	}
	out, err := s.UpsertRow(ctx, input.Row)
	if err != nil {
		return nil, apiError(h.logger, "upsert row", err)
	}
	return &OutcomeOutput{Body: outcomeToResponse(out)}, nil
}

func (h *MutationHandler) DeleteRow(ctx context.Context, input *RowInput) (*OutcomeOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "delete row", err)
	}
	out, err := s.DeleteRow(ctx, input.Row)
	if err != nil {
		return nil, apiError(h.logger, "delete row", err)
	}
	return &OutcomeOutput{Body: outcomeToResponse(out)}, nil
}

func (h *MutationHandler) InsertDocument(ctx context.Context, input *InsertDocumentInput) (*OutcomeOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "insert document", err)
	}
	out, err := s.InsertDocument(ctx, string(input.Body.Document))
	if err != nil {
		return nil, apiError(h.logger, "insert document", err)
	}
	return &OutcomeOutput{Body: outcomeToResponse(out)}, nil
}

func batchToResponse(r *mutation.BatchResult) BatchResponse {
	resp := BatchResponse{
		Succeeded:     r.Succeeded,
		Failed:        r.Failed,
		Errors:        r.Errors,
		MoreErrors:    r.MoreErrors,
		RequestCharge: r.RequestCharge,
		ElapsedMs:     r.Elapsed.Milliseconds(),
	}
	if r.RefreshErr != nil {
		resp.RefreshError = r.RefreshErr.Error()
	}
	return resp
}

func outcomeToResponse(o *mutation.Outcome) OutcomeResponse {
	return OutcomeResponse{RequestCharge: o.RequestCharge, ElapsedMs: o.Elapsed.Milliseconds()}
}
