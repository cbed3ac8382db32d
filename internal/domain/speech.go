package domain

import "strings"

type SpeechOutcome int

const (
	SpeechSkipped SpeechOutcome = iota
	SpeechAcknowledged
)

func (o SpeechOutcome) String() string {
	if o == SpeechAcknowledged {
		return "acknowledged"
	}
	return "skipped"
}

func (o SpeechOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipEmpty     SkipReason = "empty"
	SkipNotLive   SkipReason = "not_live"
	SkipDuplicate SkipReason = "duplicate"
)

// SpeechResult is what speak() yields when it does not fail.
type SpeechResult struct {
	Outcome SpeechOutcome `json:"outcome"`
	Reason  SkipReason    `json:"reason,omitempty"`
}

// SpeechTask is a single utterance request; DedupeKey is the trimmed text itself.
type SpeechTask struct {
	Text string
}

func NewSpeechTask(raw string) SpeechTask {
	return SpeechTask{Text: strings.TrimSpace(raw)}
}

func (t SpeechTask) Empty() bool       { return t.Text == "" }
func (t SpeechTask) DedupeKey() string { return t.Text }
