package status

// Status represents session lifecycle status
type Status int

const (
	// Created value
	Created Status = iota + 1
	// Active - conversation in progress
	Active
	// Ended - conversation finished, no evaluation yet
	Ended
	// Evaluating - evaluation in progress
	Evaluating
	// Completed - evaluation done
	Completed
	// Failed - evaluation failed
	Failed
	// Abandoned - session dropped before ending
	Abandoned
)

var (
	statusName = map[Status]string{Created: "created", Active: "active", Ended: "ended",
		Evaluating: "evaluating", Completed: "completed", Failed: "failed", Abandoned: "abandoned"}
	nameStatus = map[string]Status{"created": Created, "active": Active, "ended": Ended,
		"evaluating": Evaluating, "completed": Completed, "failed": Failed, "abandoned": Abandoned}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// ReqStatus represents evaluation request status
type ReqStatus int

const (
	// RQPending - request created
	RQPending ReqStatus = iota + 1
	// RQProcessing - handed to the scoring collaborator
	RQProcessing
	// RQCompleted - final, result available
	RQCompleted
	// RQFailed - final, no result
	RQFailed
)

var (
	reqStatusName = map[ReqStatus]string{RQPending: "pending", RQProcessing: "processing",
		RQCompleted: "completed", RQFailed: "failed"}
	nameReqStatus = map[string]ReqStatus{"pending": RQPending, "processing": RQProcessing,
		"completed": RQCompleted, "failed": RQFailed}
)

func (st ReqStatus) String() string {
	return reqStatusName[st]
}

// ReqFrom returns request status obj from string
func ReqFrom(st string) ReqStatus {
	return nameReqStatus[st]
}

// IsTerminal indicates a status no further write may change
func (st ReqStatus) IsTerminal() bool {
	return st == RQCompleted || st == RQFailed
}
