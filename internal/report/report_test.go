package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/math-interviewer/internal/agent"
	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	text  string
	err   error
	calls []agent.Request
}

func (s *stubCompleter) Complete(_ context.Context, req agent.Request) (string, error) {
	s.calls = append(s.calls, req)
	return s.text, s.err
}

var fixedNow = time.Date(2026, 10, 17, 15, 4, 0, 0, time.UTC)

func transcript() []domain.Turn {
	return []domain.Turn{
		{Role: domain.RoleAssistant, Content: "What strategies do you use?"},
		{Role: domain.RoleRespondent, Content: "Area models, then partial products."},
	}
}

func newSynth(c Completer) *Synthesizer {
	s := NewSynthesizer(c, 0, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSynthesizeAssemblesTemplate(t *testing.T) {
	t.Parallel()

	model := &stubCompleter{text: "# Some Title\n\n" +
		"## Teacher & Classroom Context\nGrade 4 teacher.\n\n" +
		"## Approaches to Multidigit Multiplication\nArea models first.\n\n" +
		"## Extra Musings\nShould be dropped.\n"}
	rep := newSynth(model).Synthesize(context.Background(), "sess-1", transcript())

	require.False(t, rep.Failed)
	assert.True(t, strings.HasPrefix(rep.Content, Title+"\n"))
	for _, name := range Sections {
		assert.Contains(t, rep.Content, "## "+name+"\n")
	}
	assert.Contains(t, rep.Content, "Grade 4 teacher.")
	assert.Contains(t, rep.Content, "Area models first.")
	assert.NotContains(t, rep.Content, "Should be dropped.")
	assert.NotContains(t, rep.Content, "Some Title")
	assert.Equal(t, 3, strings.Count(rep.Content, placeholder))
	assert.True(t, strings.HasSuffix(rep.Content,
		"---\n**Report Generated:** October 17, 2026 at 03:04 PM\n**Session ID:** sess-1"))
	assert.Equal(t, fixedNow, rep.GeneratedAt)
}

func TestSynthesizeHeadersStableAcrossRegenerations(t *testing.T) {
	t.Parallel()

	headings := func(content string) []string {
		var out []string
		for _, line := range strings.Split(content, "\n") {
			if strings.HasPrefix(line, "#") {
				out = append(out, line)
			}
		}
		return out
	}

	a := newSynth(&stubCompleter{text: "## Approaches to Multidigit Division\nLong division."}).
		Synthesize(context.Background(), "s", transcript())
	b := newSynth(&stubCompleter{text: "free text with no headings at all"}).
		Synthesize(context.Background(), "s", transcript())

	assert.Equal(t, headings(a.Content), headings(b.Content))
}

func TestSynthesizeFailureDocument(t *testing.T) {
	t.Parallel()

	rep := newSynth(&stubCompleter{err: errors.New("quota exceeded")}).
		Synthesize(context.Background(), "sess-9", transcript())

	require.True(t, rep.Failed)
	assert.True(t, strings.HasPrefix(rep.Content, Title))
	assert.Contains(t, rep.Content, "Error generating report: quota exceeded")
	assert.Contains(t, rep.Content, "**Session ID:** sess-9")
}

func TestPromptRendersTranscriptAndSections(t *testing.T) {
	t.Parallel()

	model := &stubCompleter{text: "## Teacher & Classroom Context\nx"}
	newSynth(model).Synthesize(context.Background(), "s", transcript())

	require.Len(t, model.calls, 1)
	req := model.calls[0]
	assert.Equal(t, defaultMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, agent.RoleSystem, req.Messages[0].Role)
	prompt := req.Messages[1].Content
	assert.Contains(t, prompt, "ASSISTANT: What strategies do you use?\n\nUSER: Area models, then partial products.")
	for _, name := range Sections {
		assert.Contains(t, prompt, "## "+name)
	}
}

func TestAssembleMatchesLooseHeadings(t *testing.T) {
	t.Parallel()

	out := Assemble("## **Beliefs, Rationales and Student Thinking**\nStudents reason with place value.", Footer("s", fixedNow))
	assert.Contains(t, out, "## Beliefs, Rationales, and Student Thinking\n\nStudents reason with place value.")
}

func TestAssembleMatchesNumberedAndNestedHeadings(t *testing.T) {
	t.Parallel()

	text := "## 1. Teacher & Classroom Context\nGrade 4 teacher.\n\n" +
		"## 2) Approaches to Multidigit Multiplication\nArea models.\n\n" +
		"### Approaches to Multidigit Division\nPartial quotients.\n\n" +
		"**Beliefs, Rationales, and Student Thinking**\nPlace value first.\n\n" +
		"#### 5. Open Questions & Possible Follow-Ups:\nAsk about fractions."
	out := Assemble(text, Footer("s", fixedNow))

	assert.Equal(t, 0, strings.Count(out, placeholder))
	assert.Contains(t, out, "## Teacher & Classroom Context\n\nGrade 4 teacher.")
	assert.Contains(t, out, "## Approaches to Multidigit Multiplication\n\nArea models.")
	assert.Contains(t, out, "## Approaches to Multidigit Division\n\nPartial quotients.")
	assert.Contains(t, out, "## Beliefs, Rationales, and Student Thinking\n\nPlace value first.")
	assert.Contains(t, out, "## Open Questions & Possible Follow-Ups\n\nAsk about fractions.")
}

func TestAssembleKeepsRulesAndSubheadingsInsideSections(t *testing.T) {
	t.Parallel()

	text := "# Report\n\n## Approaches to Multidigit Multiplication\nArea models.\n\n---\n\n" +
		"### Student errors\nMisaligned partial products.\n\n---\n**Report Generated:** yesterday"
	out := Assemble(text, Footer("s", fixedNow))

	assert.Contains(t, out, "## Approaches to Multidigit Multiplication\n\n"+
		"Area models.\n\n---\n\n**Student errors**\nMisaligned partial products.\n\n## Approaches to Multidigit Division")
	assert.NotContains(t, out, "yesterday")
	assert.NotContains(t, out, "### ")
}

func TestAssembleKeepsUnstructuredText(t *testing.T) {
	t.Parallel()

	out := Assemble("# Summary\n\nThe teacher relies on area models.\n\n## Highlights\nStrong number sense.",
		Footer("s", fixedNow))

	assert.True(t, strings.HasPrefix(out, Title+"\n\nThe teacher relies on area models.\n\n**Highlights**\nStrong number sense.\n\n## "))
	assert.NotContains(t, out, "# Summary")
	for _, name := range Sections {
		assert.Contains(t, out, "## "+name+"\n\n"+placeholder)
	}
}
