// Package interview runs the two-part interview: it owns session state,
// decides what happens on every respondent turn and coordinates the model,
// the report synthesizer and snapshot persistence.
package interview

// Settings holds the interview rules.
type Settings struct {
	// AutoSaveInterval snapshots the session whenever the transcript length
	// is a multiple of it, counted right after the respondent turn.
	AutoSaveInterval int
	// MultiplicationThreshold is the multiplication question count at which
	// the scripted division transition is inserted.
	MultiplicationThreshold int
	// DivisionThreshold ends the interview with a closing message once the
	// division count reaches it. Zero disables closing.
	DivisionThreshold int
	// HistoryWindow is the number of most recent turns sent to the model.
	HistoryWindow int
	// ReportMinTurns is the transcript length required before a report.
	ReportMinTurns int
	// SkipIntroduction starts sessions directly in Part I.
	SkipIntroduction bool
}

// DefaultSettings returns the standard interview rules.
func DefaultSettings() Settings {
	return Settings{
		AutoSaveInterval:        4,
		MultiplicationThreshold: 5,
		DivisionThreshold:       0,
		HistoryWindow:           20,
		ReportMinTurns:          6,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.AutoSaveInterval <= 0 {
		s.AutoSaveInterval = d.AutoSaveInterval
	}
	if s.MultiplicationThreshold <= 0 {
		s.MultiplicationThreshold = d.MultiplicationThreshold
	}
	if s.DivisionThreshold < 0 {
		s.DivisionThreshold = 0
	}
	if s.HistoryWindow <= 0 {
		s.HistoryWindow = d.HistoryWindow
	}
	if s.ReportMinTurns <= 0 {
		s.ReportMinTurns = d.ReportMinTurns
	}
	return s
}
