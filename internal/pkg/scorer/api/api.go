package api

import "context"

// Metadata describes the session context sent along with a transcript
type Metadata struct {
	UserID              string `json:"userId"`
	Profile             string `json:"profile,omitempty"`
	Scenario            string `json:"scenario,omitempty"`
	Objectives          string `json:"objectives,omitempty"`
	Difficulty          string `json:"difficulty,omitempty"`
	DurationSeconds     int    `json:"durationSeconds,omitempty"`
	UserMessages        int    `json:"userMessages,omitempty"`
	CounterpartMessages int    `json:"counterpartMessages,omitempty"`
}

// SubmitData keeps structure for submit method
type SubmitData struct {
	RequestID  string   `json:"request_id"`
	SessionID  string   `json:"session_id,omitempty"`
	Transcript string   `json:"transcript"`
	Metadata   Metadata `json:"metadata"`
}

// Scorer submits transcripts for asynchronous scoring,
// the result arrives later through the callback endpoint
type Scorer interface {
	Submit(ctx context.Context, data *SubmitData) error
}
