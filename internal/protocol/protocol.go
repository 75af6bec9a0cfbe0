// Package protocol supplies the interview guideline and the scripted
// messages that mark phase boundaries.
package protocol

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

//go:embed guideline.md
var embeddedGuideline string

// minimalGuideline is used if the embedded copy is somehow empty.
const minimalGuideline = "You are a qualitative research interviewer. Ask one open-ended, " +
	"non-leading question at a time about how the teacher teaches multidigit multiplication and division."

// maxGuidelineSize bounds the guideline file read at startup.
const maxGuidelineSize = 256 * 1024

// Source names where the guideline text came from.
type Source string

const (
	SourceFile     Source = "file"
	SourceEmbedded Source = "embedded"
)

// Scripted messages. They are never produced by the model so that phase
// boundaries stay deterministic.
const (
	Welcome = "Hello! Thank you for participating in this interview.\n\n" +
		"Before we begin, could you please tell me a bit about yourself? " +
		"What is your name, what grade level do you teach, and which school or district are you from?"

	SelfIntroduction = "Thank you for sharing that information! It's wonderful to meet you.\n\n" +
		"Let me introduce myself: I'm an AI research interviewer specializing in mathematics education, " +
		"particularly in how teachers approach multidigit multiplication and division. " +
		"My research is informed by the work of scholars like Karl Kosko, Amy Hackenberg, and Les Steffe.\n\n" +
		"Today, I'd like to learn about your teaching practices - specifically how you teach multidigit " +
		"multiplication and division, what algorithms and visual representations you use, and why you make " +
		"the instructional choices you do. This interview has two parts: first we'll discuss multiplication, " +
		"then division.\n\n" +
		"There are no right or wrong answers - I'm simply interested in understanding your approach and perspective. " +
		"Shall we begin?"

	MultiplicationOpening = "Wonderful! Let's begin with multiplication.\n\n" +
		"Thinking specifically about **multidigit multiplication**, " +
		"what algorithms, strategies, or visuals do you typically use with your students, " +
		"and why do you choose those approaches?"

	DivisionTransition = "Thank you for sharing how you teach multidigit multiplication.\n\n" +
		"Now let's talk about **division**. Thinking about multidigit division " +
		"(for example long division, partial quotients, or box/area methods), " +
		"what algorithms, strategies, or visuals do you usually use with your students, " +
		"and why do you choose those approaches?"

	Closing = "Thank you so much for taking the time to share how you teach multidigit multiplication " +
		"and division. This concludes our interview. You can now generate a summary report of our conversation."
)

// Protocol is the guideline text injected into every generative call.
type Protocol struct {
	Guideline string
	Source    Source
	Path      string
}

// Load reads the guideline from path. A missing, unreadable, oversized or
// empty file falls back to the built-in guideline; Load never fails.
func Load(path string, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}

	if path != "" {
		text, err := readGuideline(path)
		if err == nil {
			logger.Info("Interview protocol loaded", "path", path, "bytes", len(text))
			return &Protocol{Guideline: text, Source: SourceFile, Path: path}
		}
		logger.Warn("Interview protocol unavailable, using built-in fallback", "path", path, "error", err)
	}

	return Default()
}

// Default returns the built-in guideline.
func Default() *Protocol {
	text := strings.TrimSpace(embeddedGuideline)
	if text == "" {
		text = minimalGuideline
	}
	return &Protocol{Guideline: text, Source: SourceEmbedded}
}

func readGuideline(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat guideline: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("guideline path %s is a directory", path)
	}
	if info.Size() > maxGuidelineSize {
		return "", fmt.Errorf("guideline file too large: %d bytes (max %d)", info.Size(), maxGuidelineSize)
	}

	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return "", fmt.Errorf("read guideline: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("guideline file %s is empty", path)
	}
	return text, nil
}
