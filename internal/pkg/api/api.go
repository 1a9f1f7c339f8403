package api

import (
	"encoding/json"
	"time"
)

const (
	// HdrScorerSecret carries the shared secret on scorer callbacks
	HdrScorerSecret = "x-scorer-secret"

	// SourceUser marks an utterance authored by the practicing user
	SourceUser = "user"
	// SourceCounterpart marks an utterance authored by the simulated counterpart
	SourceCounterpart = "counterpart"
)

// Message is one utterance of a finished conversation
type Message struct {
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// DispatchOptions - per call switches, passed explicitly instead of ambient flags
type DispatchOptions struct {
	ForceFullEvaluation bool `json:"forceFullEvaluation,omitempty"`
	TestMode            bool `json:"testMode,omitempty"`
}

// SessionEnd is the payload posted by the conversation capture collaborator
// when a session finishes
type SessionEnd struct {
	SessionID       string          `json:"sessionId"`
	UserID          string          `json:"userId"`
	Transcript      string          `json:"transcript"`
	DurationSeconds int             `json:"durationSeconds"`
	Messages        []Message       `json:"messages,omitempty"`
	Options         DispatchOptions `json:"options,omitempty"`
}

// Callback is posted back by the external scoring collaborator
type Callback struct {
	RequestID string          `json:"requestId"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}
