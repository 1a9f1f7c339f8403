package messages

import (
	"encoding/json"
	"strings"

	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "SCORE/"
	// Work queue name
	Work = st + "Work"
	// Change queue name - request state change events for the notifier
	Change = st + "Change"
	// Inform queue name
	Inform = st + "Inform"

	// WorkSubmit - job type for submitting a transcript to the scoring collaborator
	WorkSubmit = Work + ":wrk-submit"
	// WorkComplete - job type for finalizing a request from a scorer result
	WorkComplete = Work + ":wrk-complete"
	// WorkFail - job type for terminalizing a request without a result
	WorkFail = Work + ":wrk-fail"
)

// EvalMessage main message passing through the evaluation pipeline,
// ID is the evaluation request id
type EvalMessage struct {
	amessages.QueueMessage
}

// ResultMessage carries a scorer outcome to the finalizing job
type ResultMessage struct {
	amessages.QueueMessage
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Options describes where a queue message goes
type Options struct {
	Queue string
	Type  string
}

// DefaultOpts creates sending options from a queue or a job type name.
// A job type "Queue:job" is polled from "Queue"
func DefaultOpts(queue string) *Options {
	res := &Options{Queue: queue, Type: queue}
	if i := strings.IndexByte(queue, ':'); i > 0 {
		res.Queue = queue[:i]
	}
	return res
}
