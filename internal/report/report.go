// Package report synthesizes the markdown interview report.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/math-interviewer/internal/agent"
	"github.com/ashureev/math-interviewer/internal/domain"
)

// Title is the first line of every report.
const Title = "# Teacher Interview Report: Multidigit Multiplication & Division"

// Sections are the report headings, in order.
var Sections = []string{
	"Teacher & Classroom Context",
	"Approaches to Multidigit Multiplication",
	"Approaches to Multidigit Division",
	"Beliefs, Rationales, and Student Thinking",
	"Open Questions & Possible Follow-Ups",
}

const (
	timestampLayout  = "January 02, 2006 at 03:04 PM"
	placeholder      = "_Not discussed in this interview._"
	researcherRole   = "You are an expert in qualitative math education research."
	defaultMaxTokens = 1500
)

// Completer runs a generation call to completion.
type Completer interface {
	Complete(ctx context.Context, req agent.Request) (string, error)
}

// Synthesizer produces reports from transcripts.
type Synthesizer struct {
	model     Completer
	maxTokens int
	logger    *slog.Logger
	now       func() time.Time
}

// NewSynthesizer creates a synthesizer that asks model for the report body.
func NewSynthesizer(model Completer, maxTokens int, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Synthesizer{
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
		now:       time.Now,
	}
}

// Synthesize builds the report. It never fails: a model error produces a
// report that states the error and has Failed set.
func (s *Synthesizer) Synthesize(ctx context.Context, sessionID string, transcript []domain.Turn) *domain.Report {
	now := s.now()
	footer := Footer(sessionID, now)

	text, err := s.model.Complete(ctx, agent.Request{
		Messages: []agent.Message{
			{Role: agent.RoleSystem, Content: researcherRole},
			{Role: agent.RoleUser, Content: Prompt(transcript)},
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		s.logger.Warn("Report generation failed", "session_id", sessionID, "error", err)
		return &domain.Report{
			Content:     fmt.Sprintf("%s\n\nError generating report: %s\n\n%s", Title, err, footer),
			GeneratedAt: now,
			Failed:      true,
		}
	}

	return &domain.Report{
		Content:     Assemble(text, footer),
		GeneratedAt: now,
	}
}

// Prompt renders the report instruction with the transcript.
func Prompt(transcript []domain.Turn) string {
	var b strings.Builder
	b.WriteString("You are a mathematics education researcher writing an interview summary.\n\n")
	b.WriteString("Based on this interview transcript, write a concise summary in markdown format.\n\n")
	b.WriteString("TRANSCRIPT:\n")
	for i, t := range transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", strings.ToUpper(string(t.Role)), t.Content)
	}
	b.WriteString("\n\nCreate a report with exactly these sections, each as a level-two markdown heading:\n\n")
	for _, name := range Sections {
		b.WriteString("## " + name + "\n")
	}
	b.WriteString("\nDo not add a title, footer or any other sections.")
	return b.String()
}

// Footer returns the trailer appended to every report.
func Footer(sessionID string, at time.Time) string {
	return fmt.Sprintf("---\n**Report Generated:** %s\n**Session ID:** %s", at.Format(timestampLayout), sessionID)
}

// Assemble places the model's section bodies into the fixed template so the
// headings are identical across regenerations. Sections the model omitted
// get a placeholder and unknown level-two sections are dropped. When no
// section matches at all, the model's text is kept under the title.
func Assemble(modelText, footer string) string {
	bodies := parseSections(modelText)

	var b strings.Builder
	b.WriteString(Title)
	b.WriteString("\n\n")
	if len(bodies) == 0 {
		if raw := unstructured(modelText); raw != "" {
			b.WriteString(raw)
			b.WriteString("\n\n")
		}
	}
	for _, name := range Sections {
		body := bodies[normalize(name)]
		if body == "" {
			body = placeholder
		}
		b.WriteString("## " + name + "\n\n")
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	b.WriteString(footer)
	return b.String()
}

var (
	headingPattern   = regexp.MustCompile(`^(#{1,4})\s+(.+?)\s*#*$`)
	numberingPattern = regexp.MustCompile(`^\d+[.)]\s*`)
	sectionKeys      = func() map[string]bool {
		keys := make(map[string]bool, len(Sections))
		for _, name := range Sections {
			keys[normalize(name)] = true
		}
		return keys
	}()
)

type lineKind int

const (
	lineBody lineKind = iota
	lineSection
	lineUnknownSection
	lineSubheading
	lineSkip
)

// classify reports what a model line means for the template. key is the
// normalized section name for lineSection and the heading text for
// lineSubheading.
func classify(trimmed string) (lineKind, string) {
	if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
		key := normalize(m[2])
		switch {
		case sectionKeys[key]:
			return lineSection, key
		case len(m[1]) == 1:
			return lineSkip, ""
		case len(m[1]) == 2:
			return lineUnknownSection, ""
		default:
			return lineSubheading, m[2]
		}
	}
	if len(trimmed) > 4 && strings.HasPrefix(trimmed, "**") && strings.HasSuffix(trimmed, "**") {
		if key := normalize(trimmed); sectionKeys[key] {
			return lineSection, key
		}
	}
	if strings.HasPrefix(trimmed, "**Report Generated:**") || strings.HasPrefix(trimmed, "**Session ID:**") {
		return lineSkip, ""
	}
	return lineBody, ""
}

func parseSections(text string) map[string]string {
	bodies := make(map[string]string)
	current := ""
	var buf []string

	flush := func() {
		if current == "" {
			return
		}
		body := trimRules(strings.Join(buf, "\n"))
		if body != "" && bodies[current] == "" {
			bodies[current] = body
		}
	}

	for _, line := range strings.Split(text, "\n") {
		kind, key := classify(strings.TrimSpace(line))
		switch kind {
		case lineSection:
			flush()
			current = key
			buf = buf[:0]
		case lineUnknownSection:
			flush()
			current = ""
			buf = buf[:0]
		case lineSubheading:
			buf = append(buf, "**"+key+"**")
		case lineSkip:
		default:
			buf = append(buf, line)
		}
	}
	flush()
	return bodies
}

// unstructured returns text with its headings demoted to bold lines and the
// title and footer removed, so the template headings stay the only ones.
func unstructured(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			if len(m[1]) > 1 {
				lines = append(lines, "**"+m[2]+"**")
			}
			continue
		}
		if kind, _ := classify(trimmed); kind == lineSkip {
			continue
		}
		lines = append(lines, line)
	}
	return trimRules(strings.Join(lines, "\n"))
}

// trimRules trims whitespace and horizontal rules from both ends of body.
// Rules inside the body are kept.
func trimRules(body string) string {
	for {
		t := strings.TrimSpace(body)
		t = strings.TrimSpace(strings.TrimSuffix(t, "---"))
		t = strings.TrimSpace(strings.TrimPrefix(t, "---"))
		if t == body {
			return t
		}
		body = t
	}
}

// normalize folds a heading so minor formatting differences still match.
func normalize(heading string) string {
	h := strings.ToLower(strings.TrimSpace(heading))
	h = strings.Trim(h, "*_ ")
	h = numberingPattern.ReplaceAllString(h, "")
	h = strings.Trim(h, "*_ :")
	h = strings.ReplaceAll(h, ",", "")
	h = strings.ReplaceAll(h, " and ", " & ")
	return strings.Join(strings.Fields(h), " ")
}
