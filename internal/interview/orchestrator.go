package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/math-interviewer/internal/agent"
	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/metrics"
	"github.com/ashureev/math-interviewer/internal/protocol"
)

var (
	// ErrEmptyMessage is returned for a blank respondent message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInterviewComplete is returned for messages sent after the closing turn.
	ErrInterviewComplete = errors.New("interview is complete")
	// ErrNoReport is returned when a report is read before one was generated.
	ErrNoReport = errors.New("no report has been generated")
)

// Collaborator produces the model's reply to a delegated turn.
type Collaborator interface {
	Collect(ctx context.Context, req agent.Request, onFragment func(string)) (string, error)
}

// ReportSynthesizer turns a transcript into a report. It never fails; a
// failed generation is described by the returned report.
type ReportSynthesizer interface {
	Synthesize(ctx context.Context, sessionID string, transcript []domain.Turn) *domain.Report
}

// Exporter renders a session as the downloadable document.
type Exporter interface {
	Export(s *domain.SessionState) ([]byte, error)
}

// Status summarizes a session for progress displays.
type Status struct {
	SessionID               string       `json:"session_id"`
	Phase                   domain.Phase `json:"phase"`
	PhaseName               string       `json:"phase_name"`
	MultiplicationQuestions int          `json:"mult_questions"`
	DivisionQuestions       int          `json:"div_questions"`
	TotalMessages           int          `json:"total_messages"`
	ReportReady             bool         `json:"report_ready"`
	// RemainingTurns is how many more turns are needed before a report can
	// be requested.
	RemainingTurns int  `json:"remaining_turns"`
	Complete       bool `json:"complete"`
}

// TurnResult is the outcome of one accepted respondent message.
type TurnResult struct {
	Respondent domain.Turn
	Reply      domain.Turn
	Action     ActionKind
	// Failed is set when the reply is an error marker.
	Failed bool
	// SavedTo is the auto-save location, if the turn triggered one.
	SavedTo string
	Status  Status
}

// ReportOutcome is either a report or a refusal with the number of turns
// still missing.
type ReportOutcome struct {
	Report         *domain.Report
	Refused        bool
	RemainingTurns int
}

// Deps wires an Orchestrator.
type Deps struct {
	Store           *Store
	Collaborator    Collaborator
	Reports         ReportSynthesizer
	Exporter        Exporter
	Protocol        *protocol.Protocol
	Settings        Settings
	Metrics         *metrics.Metrics
	ConversationLog agent.ConversationLogger
	Logger          *slog.Logger
}

// Orchestrator applies respondent turns to sessions.
type Orchestrator struct {
	store    *Store
	collab   Collaborator
	reports  ReportSynthesizer
	exporter Exporter
	protocol *protocol.Protocol
	settings Settings
	metrics  *metrics.Metrics
	convLog  agent.ConversationLogger
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator from deps.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Protocol == nil {
		deps.Protocol = protocol.Default()
	}
	if deps.ConversationLog == nil {
		deps.ConversationLog = agent.NopConversationLogger()
	}
	return &Orchestrator{
		store:    deps.Store,
		collab:   deps.Collaborator,
		reports:  deps.Reports,
		exporter: deps.Exporter,
		protocol: deps.Protocol,
		settings: deps.Settings.withDefaults(),
		metrics:  deps.Metrics,
		convLog:  deps.ConversationLog,
		logger:   deps.Logger,
	}
}

// Create starts a new session.
func (o *Orchestrator) Create(ctx context.Context) (*domain.SessionState, error) {
	s, err := o.store.Create(ctx)
	if err != nil {
		return nil, err
	}
	o.logEvent(ctx, s, "outbound", "opening_turn", s.Transcript[0].Content, nil)
	return s, nil
}

// Session returns a copy of the session's state.
func (o *Orchestrator) Session(ctx context.Context, id string) (*domain.SessionState, error) {
	return o.store.GetOrCreate(ctx, id)
}

// Status returns the progress summary of a session.
func (o *Orchestrator) Status(ctx context.Context, id string) (Status, error) {
	s, err := o.store.GetOrCreate(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return o.status(s), nil
}

// Transcript returns a copy of the session's transcript.
func (o *Orchestrator) Transcript(ctx context.Context, id string) ([]domain.Turn, error) {
	s, err := o.store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Transcript, nil
}

// Submit applies one respondent message. onFragment, if set, receives the
// reply as it is produced; scripted replies arrive as a single fragment.
// The transcript grows by exactly two turns for every accepted message.
func (o *Orchestrator) Submit(ctx context.Context, id, text string, onFragment func(string)) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	var result *TurnResult
	err := o.store.Mutate(ctx, id, func(s *domain.SessionState) error {
		if s.Phase == domain.PhaseDone {
			return ErrInterviewComplete
		}

		action := Decide(s, o.settings)
		prevPhase := s.Phase

		respondent := s.Append(domain.RoleRespondent, text, false)
		o.logEvent(ctx, s, "inbound", "respondent_message", text, nil)

		var savedTo string
		if s.Len()%o.settings.AutoSaveInterval == 0 {
			if location, ok := o.store.snapshots.Snapshot(ctx, s); ok {
				savedTo = location
			}
		}

		reply, failed, err := o.execute(ctx, s, action, onFragment)
		if err != nil {
			return err
		}

		turn := s.Append(domain.RoleAssistant, reply, failed)
		if s.Phase != prevPhase {
			o.metrics.RecordPhaseTransition(string(s.Phase))
		}
		o.metrics.RecordTurn(string(action.Kind))
		o.logEvent(ctx, s, "outbound", "assistant_turn", reply, map[string]any{
			"action": action.Kind,
			"failed": failed,
		})
		o.logger.Info("Interview turn",
			"session_id", s.ID,
			"action", action.Kind,
			"phase", s.Phase,
			"mult_questions", s.MultiplicationQuestions,
			"div_questions", s.DivisionQuestions,
			"failed", failed,
		)

		result = &TurnResult{
			Respondent: respondent,
			Reply:      turn,
			Action:     action.Kind,
			Failed:     failed,
			SavedTo:    savedTo,
			Status:     o.status(s),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// execute produces the reply for action and applies its counter and phase
// effects. A collaborator failure yields an error-marker reply and leaves
// the counters untouched.
func (o *Orchestrator) execute(ctx context.Context, s *domain.SessionState, action Action, onFragment func(string)) (string, bool, error) {
	if action.Kind.Scripted() {
		if err := action.apply(s); err != nil {
			return "", false, fmt.Errorf("apply %s: %w", action.Kind, err)
		}
		if onFragment != nil {
			onFragment(action.Message)
		}
		return action.Message, false, nil
	}

	start := time.Now()
	reply, err := o.collab.Collect(ctx, o.delegateRequest(s), onFragment)
	o.metrics.RecordCollaboratorCall(time.Since(start), err)
	if err != nil {
		o.logger.Warn("Collaborator call failed",
			"session_id", s.ID,
			"phase", s.Phase,
			"error", err,
		)
		return "Error: " + err.Error(), true, nil
	}

	countDelegated(s)
	return reply, false, nil
}

func (o *Orchestrator) delegateRequest(s *domain.SessionState) agent.Request {
	window := s.RecentTurns(o.settings.HistoryWindow)
	msgs := make([]agent.Message, 0, len(window)+1)
	msgs = append(msgs, agent.Message{Role: agent.RoleSystem, Content: o.protocol.Guideline})
	for _, t := range window {
		msgs = append(msgs, agent.Message{Role: string(t.Role), Content: t.Content})
	}
	return agent.Request{Messages: msgs}
}

// RequestReport generates a report once the transcript is long enough.
// Earlier requests are refused without calling the model.
func (o *Orchestrator) RequestReport(ctx context.Context, id string) (ReportOutcome, error) {
	var outcome ReportOutcome
	err := o.store.Mutate(ctx, id, func(s *domain.SessionState) error {
		if remaining := o.remainingTurns(s); remaining > 0 {
			o.metrics.RecordReport("refused")
			outcome = ReportOutcome{Refused: true, RemainingTurns: remaining}
			return nil
		}

		transcript := make([]domain.Turn, len(s.Transcript))
		copy(transcript, s.Transcript)
		report := o.reports.Synthesize(ctx, s.ID, transcript)
		s.Report = report

		result := "generated"
		if report.Failed {
			result = "failed"
		}
		o.metrics.RecordReport(result)
		o.logEvent(ctx, s, "outbound", "report", report.Content, map[string]any{"failed": report.Failed})
		o.logger.Info("Interview report synthesized", "session_id", s.ID, "failed", report.Failed)

		o.store.snapshots.Snapshot(ctx, s)
		r := *report
		outcome = ReportOutcome{Report: &r}
		return nil
	})
	return outcome, err
}

// Report returns the last generated report.
func (o *Orchestrator) Report(ctx context.Context, id string) (*domain.Report, error) {
	s, err := o.store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ReportReady() {
		return nil, ErrNoReport
	}
	return s.Report, nil
}

// Export renders the session as the downloadable JSON document.
func (o *Orchestrator) Export(ctx context.Context, id string) ([]byte, error) {
	s, err := o.store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.exporter.Export(s)
}

// Reset discards the session, saving it first when it holds a conversation,
// and returns a fresh session.
func (o *Orchestrator) Reset(ctx context.Context, id string) (*domain.SessionState, error) {
	fresh, err := o.store.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	o.convLog.Log(agent.ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: id,
		Channel:   ChannelFromContext(ctx),
		Direction: "outbound",
		EventType: "session_reset",
		Meta:      map[string]any{"new_session_id": fresh.ID},
	})
	return fresh, nil
}

func (o *Orchestrator) remainingTurns(s *domain.SessionState) int {
	return max(o.settings.ReportMinTurns-s.Len(), 0)
}

func (o *Orchestrator) status(s *domain.SessionState) Status {
	return Status{
		SessionID:               s.ID,
		Phase:                   s.Phase,
		PhaseName:               s.Phase.DisplayName(),
		MultiplicationQuestions: s.MultiplicationQuestions,
		DivisionQuestions:       s.DivisionQuestions,
		TotalMessages:           s.Len(),
		ReportReady:             s.ReportReady(),
		RemainingTurns:          o.remainingTurns(s),
		Complete:                s.Phase == domain.PhaseDone,
	}
}

func (o *Orchestrator) logEvent(ctx context.Context, s *domain.SessionState, direction, eventType, content string, meta map[string]any) {
	o.convLog.Log(agent.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		SessionID:  s.ID,
		Channel:    ChannelFromContext(ctx),
		Direction:  direction,
		EventType:  eventType,
		Phase:      string(s.Phase),
		ContentRaw: content,
		Meta:       meta,
	})
}

type channelKey struct{}

// WithChannel tags ctx with the surface a request arrived on, for the
// conversation log.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

// ChannelFromContext returns the channel set by WithChannel, or "api".
func ChannelFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(channelKey{}).(string); ok && v != "" {
		return v
	}
	return "api"
}
