package persistence

import (
	"database/sql"
	"time"
)

type (

	// Session table
	Session struct {
		ID           string
		UserID       string
		UserEmail    sql.NullString
		Profile      sql.NullString
		Scenario     sql.NullString
		Objectives   sql.NullString
		Difficulty   sql.NullString
		Transcript   sql.NullString
		DurationSecs sql.NullInt32
		Status       string
		Score        sql.NullInt32
		Passed       sql.NullBool
		EvalPayload  []byte
		TestMode     bool
		Created      time.Time
		Updated      time.Time
		Version      int
	}

	// EvalRequest table, one row per evaluation attempt, never deleted
	EvalRequest struct {
		RequestID    string
		SessionID    sql.NullString
		UserID       string
		Status       string
		Result       []byte
		ErrorMessage sql.NullString
		TestMode     bool
		Created      time.Time
		Updated      time.Time
		Version      int
	}
)
