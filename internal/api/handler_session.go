package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-docsync/internal/session"
)

// --- Huma Input/Output types ---

type CreateSessionInput struct {
	Body struct {
		Database  string `json:"database" doc:"Database name" required:"true" minLength:"1"`
		Container string `json:"container" doc:"Container name" required:"true" minLength:"1"`
	}
}

type SessionResponse struct {
	ID        string          `json:"id" doc:"Session UUID"`
	Database  string          `json:"database"`
	Container string          `json:"container"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	LastUsed  time.Time       `json:"last_used"`
	Status    *session.Status `json:"status"`
}

type SessionOutput struct {
	Body SessionResponse
}

type ListSessionsInput struct{}

type ListSessionsOutput struct {
	Body []SessionResponse
}

type SessionIDInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
}

type ExecuteInput struct {
	SessionID string `path:"session_id" doc:"Session UUID" format:"uuid"`
	Body      struct {
		Query    string `json:"query,omitempty" doc:"Document query, or OData filter for tables. Blank selects everything."`
		Paging   bool   `json:"paging,omitempty" doc:"Fetch one page at a time instead of the whole result"`
		MaxCount int    `json:"max_count,omitempty" doc:"Result cap in bulk mode; negative disables it"`
		PageSize int    `json:"page_size,omitempty" doc:"Records per page" minimum:"0"`
	}
}

type StatusOutput struct {
	Body *session.Status
}

// --- Handler ---

type SessionHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

func NewSessionHandler(sessions *session.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

func registerSessionRoutes(api huma.API, h *SessionHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/v1/sessions",
		Summary:       "Open a grid session over a container",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateSession)

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/v1/sessions",
		Summary:     "List open sessions",
		Tags:        []string{"sessions"},
	}, h.ListSessions)

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/v1/sessions/{session_id}",
		Summary:     "Get a session",
		Tags:        []string{"sessions"},
	}, h.GetSession)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/v1/sessions/{session_id}",
		Summary:       "Close a session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeleteSession)

	huma.Register(api, huma.Operation{
		OperationID: "execute-query",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/query",
		Summary:     "Run a query and replace the grid",
		Tags:        []string{"sessions"},
	}, h.Execute)

	huma.Register(api, huma.Operation{
		OperationID: "refresh",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/refresh",
		Summary:     "Re-run the last query",
		Tags:        []string{"sessions"},
	}, h.Refresh)

	huma.Register(api, huma.Operation{
		OperationID: "next-page",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/pages/next",
		Summary:     "Move to the next page",
		Tags:        []string{"sessions"},
	}, h.NextPage)

	huma.Register(api, huma.Operation{
		OperationID: "prev-page",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/{session_id}/pages/prev",
		Summary:     "Move to the previous page",
		Tags:        []string{"sessions"},
	}, h.PrevPage)
}

func (h *SessionHandler) CreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	s, err := h.sessions.Open(ctx, input.Body.Database, input.Body.Container)
	if err != nil {
		return nil, apiError(h.logger, "open session", err)
	}
	return &SessionOutput{Body: sessionToResponse(s)}, nil
}

func (h *SessionHandler) ListSessions(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	list := h.sessions.List()
	resp := make([]SessionResponse, len(list))
	for i, s := range list {
		resp[i] = sessionToResponse(s)
	}
	return &ListSessionsOutput{Body: resp}, nil
}

func (h *SessionHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "get session", err)
	}
	return &SessionOutput{Body: sessionToResponse(s)}, nil
}

func (h *SessionHandler) DeleteSession(ctx context.Context, input *SessionIDInput) (*struct{}, error) {
	if err := h.sessions.Close(input.SessionID); err != nil {
		return nil, apiError(h.logger, "close session", err)
	}
	return nil, nil
}

func (h *SessionHandler) Execute(ctx context.Context, input *ExecuteInput) (*StatusOutput, error) {
	s, err := h.sessions.Get(input.SessionID)
	if err != nil {
		return nil, apiError(h.logger, "execute", err)
	}
	st, err := s.Execute(ctx, session.Request{
		Query:    input.Body.Query,
		Paging:   input.Body.Paging,
		MaxCount: input.Body.MaxCount,
		PageSize: input.Body.PageSize,
	})
	if err != nil {
		return nil, apiError(h.logger, "execute", err)
	}
	return &StatusOutput{Body: st}, nil
}

func (h *SessionHandler) Refresh(ctx context.Context, input *SessionIDInput) (*StatusOutput, error) {
	return h.navigate(input.SessionID, "refresh", func(s *session.Session) (*session.Status, error) {
		return s.Refresh(ctx)
	})
}

func (h *SessionHandler) NextPage(ctx context.Context, input *SessionIDInput) (*StatusOutput, error) {
	return h.navigate(input.SessionID, "next page", func(s *session.Session) (*session.Status, error) {
		return s.NextPage(ctx)
	})
}

func (h *SessionHandler) PrevPage(ctx context.Context, input *SessionIDInput) (*StatusOutput, error) {
	return h.navigate(input.SessionID, "previous page", func(s *session.Session) (*session.Status, error) {
		return s.PrevPage()
	})
}

func (h *SessionHandler) navigate(id, op string, fn func(*session.Session) (*session.Status, error)) (*StatusOutput, error) {
	s, err := h.sessions.Get(id)
	if err != nil {
		return nil, apiError(h.logger, op, err)
	}
	st, err := fn(s)
	if err != nil {
		return nil, apiError(h.logger, op, err)
	}
	return &StatusOutput{Body: st}, nil
}

func sessionToResponse(s *session.Session) SessionResponse {
	meta := s.Metadata()
	return SessionResponse{
		ID:        s.ID(),
		Database:  meta.Database,
		Container: meta.Name,
		Kind:      string(meta.Kind),
		CreatedAt: s.Created(),
		LastUsed:  s.LastUsed(),
		Status:    s.Status(),
	}
}
