package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/interview"
)

// Interviewer is the interview surface exposed over HTTP.
type Interviewer interface {
	Create(ctx context.Context) (*domain.SessionState, error)
	Status(ctx context.Context, id string) (interview.Status, error)
	Transcript(ctx context.Context, id string) ([]domain.Turn, error)
	Submit(ctx context.Context, id, text string, onFragment func(string)) (*interview.TurnResult, error)
	RequestReport(ctx context.Context, id string) (interview.ReportOutcome, error)
	Report(ctx context.Context, id string) (*domain.Report, error)
	Export(ctx context.Context, id string) ([]byte, error)
	Reset(ctx context.Context, id string) (*domain.SessionState, error)
}

// TurnView is the wire form of a transcript turn.
type TurnView struct {
	Index   int    `json:"index"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Error   bool   `json:"error,omitempty"`
}

// NewTurnView converts a domain turn.
func NewTurnView(t domain.Turn) TurnView {
	return TurnView{Index: t.Index, Role: string(t.Role), Content: t.Content, Error: t.Error}
}

func turnViews(turns []domain.Turn) []TurnView {
	out := make([]TurnView, len(turns))
	for i, t := range turns {
		out[i] = NewTurnView(t)
	}
	return out
}

// TurnResponse is returned for an accepted respondent message.
type TurnResponse struct {
	Respondent TurnView         `json:"respondent"`
	Reply      TurnView         `json:"reply"`
	Action     string           `json:"action"`
	Failed     bool             `json:"failed"`
	SavedTo    string           `json:"saved_to,omitempty"`
	Status     interview.Status `json:"status"`
}

// NewTurnResponse converts a turn result.
func NewTurnResponse(r *interview.TurnResult) TurnResponse {
	return TurnResponse{
		Respondent: NewTurnView(r.Respondent),
		Reply:      NewTurnView(r.Reply),
		Action:     string(r.Action),
		Failed:     r.Failed,
		SavedTo:    r.SavedTo,
		Status:     r.Status,
	}
}

// SessionResponse describes a newly issued session.
type SessionResponse struct {
	SessionID         string     `json:"session_id"`
	PreviousSessionID string     `json:"previous_session_id,omitempty"`
	Phase             string     `json:"phase"`
	Transcript        []TurnView `json:"transcript"`
}

// ReportResponse carries a synthesized report.
type ReportResponse struct {
	SessionID   string `json:"session_id"`
	Content     string `json:"content"`
	GeneratedAt string `json:"generated_at"`
	Failed      bool   `json:"failed"`
}

// MessageRequest is the body of a respondent message.
type MessageRequest struct {
	Message string `json:"message"`
}

// InterviewHandler serves the session endpoints.
type InterviewHandler struct {
	interviews  Interviewer
	limiter     *RateLimiter
	maxBodySize int64
	logger      *slog.Logger
}

// NewInterviewHandler creates the handler. limiter may be nil.
func NewInterviewHandler(interviews Interviewer, limiter *RateLimiter, maxBodySize int64, logger *slog.Logger) *InterviewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &InterviewHandler{
		interviews:  interviews,
		limiter:     limiter,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// RegisterRoutes registers the session routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetStatus)
			r.Get("/transcript", h.GetTranscript)
			r.Post("/messages", h.PostMessage)
			r.Post("/report", h.GenerateReport)
			r.Get("/report", h.DownloadReport)
			r.Get("/export", h.Export)
			r.Post("/reset", h.Reset)
		})
	})
}

// CreateSession handles POST /api/sessions.
func (h *InterviewHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.interviews.Create(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusCreated, SessionResponse{
		SessionID:  s.ID,
		Phase:      string(s.Phase),
		Transcript: turnViews(s.Transcript),
	})
}

// GetStatus handles GET /api/sessions/{id}.
func (h *InterviewHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.interviews.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, status)
}

// GetTranscript handles GET /api/sessions/{id}/transcript.
func (h *InterviewHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := h.interviews.Transcript(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"transcript": turnViews(turns),
	})
}

// PostMessage handles POST /api/sessions/{id}/messages. Clients that accept
// text/event-stream receive fragment events followed by a turn event.
func (h *InterviewHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.limiter != nil && !h.limiter.Allow(id) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, interview.ErrEmptyMessage.Error())
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.streamMessage(w, r, id, req.Message)
		return
	}

	result, err := h.interviews.Submit(r.Context(), id, req.Message, nil)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, NewTurnResponse(result))
}

// streamMessage submits a message and relays the reply as SSE. Headers are
// sent on the first fragment, so errors raised before the reply starts are
// still answered as JSON.
func (h *InterviewHandler) streamMessage(w http.ResponseWriter, r *http.Request, id, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	send := func(event string, v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			h.logger.Warn("Failed to marshal SSE payload", "event", event, "error", err)
			return
		}
		if err := writeSSE(w, event, string(data)); err != nil {
			h.logger.Warn("Failed to write SSE event", "event", event, "error", err)
			return
		}
		flusher.Flush()
	}

	result, err := h.interviews.Submit(r.Context(), id, message, func(fragment string) {
		start()
		send("fragment", map[string]string{"content": fragment})
	})
	if err != nil {
		if !started {
			writeError(w, h.logger, err)
			return
		}
		h.logger.Warn("Streaming turn failed", "session_id", id, "error", err)
		send("error", map[string]string{"error": err.Error()})
		return
	}

	start()
	send("turn", NewTurnResponse(result))
}

// GenerateReport handles POST /api/sessions/{id}/report.
func (h *InterviewHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, err := h.interviews.RequestReport(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if outcome.Refused {
		JSON(w, http.StatusConflict, map[string]interface{}{
			"error":           "not enough conversation for a report",
			"remaining_turns": outcome.RemainingTurns,
		})
		return
	}
	JSON(w, http.StatusOK, NewReportResponse(id, outcome.Report))
}

// NewReportResponse converts a report.
func NewReportResponse(id string, rep *domain.Report) ReportResponse {
	return ReportResponse{
		SessionID:   id,
		Content:     rep.Content,
		GeneratedAt: rep.GeneratedAt.UTC().Format(time.RFC3339),
		Failed:      rep.Failed,
	}
}

// DownloadReport handles GET /api/sessions/{id}/report.
func (h *InterviewHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rep, err := h.interviews.Report(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	attachment(w, "text/markdown; charset=utf-8", "Report_"+id+".md", []byte(rep.Content))
}

// Export handles GET /api/sessions/{id}/export.
func (h *InterviewHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.interviews.Export(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	attachment(w, "application/json", "MathInterview_"+id+".json", doc)
}

// Reset handles POST /api/sessions/{id}/reset.
func (h *InterviewHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.interviews.Reset(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, SessionResponse{
		SessionID:         s.ID,
		PreviousSessionID: id,
		Phase:             string(s.Phase),
		Transcript:        turnViews(s.Transcript),
	})
}
