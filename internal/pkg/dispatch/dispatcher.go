package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/evaly/scorepipe/internal/pkg/api"
	"github.com/evaly/scorepipe/internal/pkg/classifier"
	"github.com/evaly/scorepipe/internal/pkg/evaluation"
	"github.com/evaly/scorepipe/internal/pkg/messages"
	"github.com/evaly/scorepipe/internal/pkg/persistence"
	"github.com/evaly/scorepipe/internal/pkg/status"
	"github.com/evaly/scorepipe/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrNoSession - session context is missing or unknown
	ErrNoSession = errors.New("no session data")
	// ErrNotOwner - caller does not own the session
	ErrNotOwner = errors.New("session belongs to another user")
	// ErrAlreadyEvaluating - an evaluation for the session is in progress
	ErrAlreadyEvaluating = errors.New("evaluation already in progress")
	// ErrNoTranscript - nothing to score
	ErrNoTranscript = errors.New("no transcript")
)

// DB provides persistence functionality
type DB interface {
	LoadSession(ctx context.Context, id string) (*persistence.Session, error)
	UpdateSessionEnd(ctx context.Context, id, transcript string, durationSecs int) error
	UpdateSessionStatus(ctx context.Context, item *persistence.Session, newStatus string) error
	UpdateSessionResult(ctx context.Context, item *persistence.Session) error
	InsertEvalRequest(ctx context.Context, item *persistence.EvalRequest) error
	UpdateEvalRequest(ctx context.Context, item *persistence.EvalRequest) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, *messages.Options) error
}

// FileSaver provides save file functionality
type FileSaver interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// Dispatcher routes a finished session either to the short-circuit
// evaluator or to the external scoring collaborator
type Dispatcher struct {
	db     DB
	sender MsgSender
	saver  FileSaver
}

// NewDispatcher creates dispatcher instance
func NewDispatcher(db DB, sender MsgSender, saver FileSaver) (*Dispatcher, error) {
	if db == nil {
		return nil, fmt.Errorf("no DB")
	}
	if sender == nil {
		return nil, fmt.Errorf("no msg sender")
	}
	if saver == nil {
		return nil, fmt.Errorf("no file saver")
	}
	return &Dispatcher{db: db, sender: sender, saver: saver}, nil
}

// Dispatch registers an evaluation request for a finished session and starts the evaluation.
// Returns the new request ID
func (d *Dispatcher) Dispatch(ctx context.Context, in *api.SessionEnd) (string, error) {
	if in.SessionID == "" || in.UserID == "" {
		return "", ErrNoSession
	}
	if strings.TrimSpace(in.Transcript) == "" {
		return "", ErrNoTranscript
	}
	ses, err := d.db.LoadSession(ctx, in.SessionID)
	if err != nil {
		return "", fmt.Errorf("can't load session: %w", err)
	}
	if ses != nil && ses.UserID != in.UserID {
		// keep the evaluation, but never attach it to a session the caller does not own
		goapp.Log.Warn().Str("sessionID", goapp.Sanitize(in.SessionID)).Msg("session owner mismatch - evaluation not linked")
		ses = nil
	}
	rd := &persistence.EvalRequest{RequestID: uuid.New().String(), UserID: in.UserID,
		Status: status.RQPending.String(), TestMode: in.Options.TestMode, Created: time.Now()}
	if ses != nil {
		rd.SessionID = utils.ToSQLStr(ses.ID)
	}
	if err := d.db.InsertEvalRequest(ctx, rd); err != nil {
		return "", fmt.Errorf("can't insert evaluation: %w", err)
	}
	// the snapshot is what gets scored, save it before anything else can fail
	name, err := utils.MakeTranscriptName(rd.RequestID)
	if err != nil {
		return "", fmt.Errorf("can't make snapshot name: %w", err)
	}
	if err := d.saver.SaveFile(ctx, name, strings.NewReader(in.Transcript), int64(len(in.Transcript))); err != nil {
		return "", fmt.Errorf("can't save snapshot: %w", err)
	}
	if ses != nil {
		if err := d.db.UpdateSessionEnd(ctx, ses.ID, in.Transcript, in.DurationSeconds); err != nil {
			return "", fmt.Errorf("can't save transcript: %w", err)
		}
		if err := d.db.UpdateSessionStatus(ctx, ses, status.Evaluating.String()); err != nil {
			return "", fmt.Errorf("can't update session status: %w", err)
		}
	}
	msgs := in.Messages
	if len(msgs) == 0 {
		msgs = classifier.Parse(in.Transcript)
	}
	verdict := classifier.Classify(msgs)
	goapp.Log.Info().Str("ID", rd.RequestID).Int("userMsgs", verdict.UserMessages).
		Int("userTextLen", verdict.UserTextLen).Bool("sufficient", verdict.Sufficient).Msg("classified")
	if !verdict.Sufficient && !in.Options.ForceFullEvaluation {
		if err := d.completeShort(ctx, rd, ses); err != nil {
			return "", err
		}
		return rd.RequestID, nil
	}
	rd.Status = status.RQProcessing.String()
	if err := d.db.UpdateEvalRequest(ctx, rd); err != nil {
		return "", fmt.Errorf("can't update evaluation: %w", err)
	}
	err = d.sender.SendMessage(ctx, &messages.EvalMessage{QueueMessage: amessages.QueueMessage{ID: rd.RequestID}},
		messages.DefaultOpts(messages.WorkSubmit))
	if err != nil {
		return "", fmt.Errorf("can't send msg: %w", err)
	}
	err = d.sender.SendMessage(ctx, &amessages.InformMessage{QueueMessage: amessages.QueueMessage{ID: rd.RequestID},
		Type: amessages.InformTypeStarted, At: time.Now()}, messages.DefaultOpts(messages.Inform))
	if err != nil {
		return "", fmt.Errorf("can't send msg: %w", err)
	}
	return rd.RequestID, nil
}

// completeShort writes the canned terminal state synchronously, no scorer involved
func (d *Dispatcher) completeShort(ctx context.Context, rd *persistence.EvalRequest, ses *persistence.Session) error {
	res := evaluation.TooShort()
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("can't marshal result: %w", err)
	}
	rd.Status = status.RQCompleted.String()
	rd.Result = payload
	if err := d.db.UpdateEvalRequest(ctx, rd); err != nil {
		return fmt.Errorf("can't update evaluation: %w", err)
	}
	if ses != nil {
		ses.Status = status.Completed.String()
		ses.Score = utils.ToSQLInt32(0)
		ses.Passed = utils.ToSQLBool(false)
		ses.EvalPayload = payload
		if err := d.db.UpdateSessionResult(ctx, ses); err != nil {
			return fmt.Errorf("can't update session result: %w", err)
		}
	}
	err = d.sender.SendMessage(ctx, &messages.EvalMessage{QueueMessage: amessages.QueueMessage{ID: rd.RequestID}},
		messages.DefaultOpts(messages.Change))
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	err = d.sender.SendMessage(ctx, &amessages.InformMessage{QueueMessage: amessages.QueueMessage{ID: rd.RequestID},
		Type: amessages.InformTypeFinished, At: time.Now()}, messages.DefaultOpts(messages.Inform))
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	goapp.Log.Info().Str("ID", rd.RequestID).Msg("short evaluation completed")
	return nil
}

// ReEvaluate scores an already stored session again.
// Rejected while another evaluation is in progress, the newest result overwrites the old one
func (d *Dispatcher) ReEvaluate(ctx context.Context, sessionID, callerID string, admin bool, opts api.DispatchOptions) (string, error) {
	if sessionID == "" {
		return "", ErrNoSession
	}
	ses, err := d.db.LoadSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("can't load session: %w", err)
	}
	if ses == nil {
		return "", ErrNoSession
	}
	if !admin && ses.UserID != callerID {
		return "", ErrNotOwner
	}
	if ses.Status == status.Evaluating.String() {
		return "", ErrAlreadyEvaluating
	}
	transcript := utils.FromSQLStr(ses.Transcript)
	if strings.TrimSpace(transcript) == "" {
		return "", ErrNoTranscript
	}
	// admin re-evaluation keeps the session with its owner
	return d.Dispatch(ctx, &api.SessionEnd{SessionID: ses.ID, UserID: ses.UserID, Transcript: transcript,
		DurationSeconds: int(utils.FromSQLInt32OrZero(ses.DurationSecs)), Options: opts})
}
