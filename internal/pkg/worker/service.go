package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/evaly/scorepipe/internal/pkg/api"
	"github.com/evaly/scorepipe/internal/pkg/classifier"
	"github.com/evaly/scorepipe/internal/pkg/evaluation"
	"github.com/evaly/scorepipe/internal/pkg/messages"
	"github.com/evaly/scorepipe/internal/pkg/persistence"
	sapi "github.com/evaly/scorepipe/internal/pkg/scorer/api"
	"github.com/evaly/scorepipe/internal/pkg/status"
	"github.com/evaly/scorepipe/internal/pkg/utils"
	"github.com/evaly/scorepipe/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, *messages.Options) error
}

// DB provides persistence functionality
type DB interface {
	LoadEvalRequest(ctx context.Context, id string) (*persistence.EvalRequest, error)
	UpdateEvalRequest(ctx context.Context, item *persistence.EvalRequest) error
	LoadSession(ctx context.Context, id string) (*persistence.Session, error)
	UpdateSessionResult(ctx context.Context, item *persistence.Session) error
}

// Filer retrieves transcript snapshots
type Filer interface {
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
}

// ScorerProvider returns a scoring collaborator instance
type ScorerProvider interface {
	Get() (sapi.Scorer, string, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Filer       Filer
	ScorerPr    ScorerProvider
	Testing     bool
}

// StartWorkerService starts the event queue listener service to listen for events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.WorkSubmit: handler.Create(data, handleSubmit, handler.DefaultOpts[messages.EvalMessage]().
			WithFailure(failSubmit(data)).WithTimeout(time.Minute*2).
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		messages.WorkComplete: handler.Create(data, handleComplete, handler.DefaultOpts[messages.ResultMessage]().
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		messages.WorkFail: handler.Create(data, handleFail, handler.DefaultOpts[messages.ResultMessage]().
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Work),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("score-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleSubmit(ctx context.Context, m *messages.EvalMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling submit")
	req, err := data.DB.LoadEvalRequest(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load request: %w", err)
	}
	if req == nil {
		return fmt.Errorf("unknown request '%s'", m.ID)
	}
	if status.ReqFrom(req.Status).IsTerminal() {
		goapp.Log.Info().Str("ID", m.ID).Str("status", req.Status).Msg("already finalized - skip")
		return nil
	}
	transcript, err := loadSnapshot(ctx, m.ID, data)
	if err != nil {
		return err
	}
	meta := sapi.Metadata{UserID: req.UserID}
	if req.SessionID.Valid {
		ses, err := data.DB.LoadSession(ctx, req.SessionID.String)
		if err != nil {
			return fmt.Errorf("can't load session: %w", err)
		}
		if ses != nil {
			meta.Profile = utils.FromSQLStr(ses.Profile)
			meta.Scenario = utils.FromSQLStr(ses.Scenario)
			meta.Objectives = utils.FromSQLStr(ses.Objectives)
			meta.Difficulty = utils.FromSQLStr(ses.Difficulty)
			meta.DurationSeconds = int(utils.FromSQLInt32OrZero(ses.DurationSecs))
		}
	}
	meta.UserMessages, meta.CounterpartMessages = countMessages(transcript)
	scorer, url, err := data.ScorerPr.Get()
	if err != nil {
		return fmt.Errorf("can't get scorer: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Str("url", url).Msg("submitting")
	err = scorer.Submit(ctx, &sapi.SubmitData{RequestID: req.RequestID,
		SessionID: utils.FromSQLStr(req.SessionID), Transcript: transcript, Metadata: meta})
	if err != nil {
		return fmt.Errorf("can't submit: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("submitted")
	return nil
}

func loadSnapshot(ctx context.Context, id string, data *ServiceData) (string, error) {
	name, err := utils.MakeTranscriptName(id)
	if err != nil {
		return "", fmt.Errorf("can't make snapshot name: %w", err)
	}
	f, err := data.Filer.LoadFile(ctx, name)
	if err != nil {
		return "", fmt.Errorf("can't load snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("can't read snapshot: %w", err)
	}
	return string(b), nil
}

func countMessages(transcript string) (int, int) {
	user, other := 0, 0
	for _, msg := range classifier.Parse(transcript) {
		if msg.Source == api.SourceUser {
			user++
		} else {
			other++
		}
	}
	return user, other
}

// failSubmit turns an exhausted submit into a failed evaluation
func failSubmit(data *ServiceData) func(context.Context, *messages.EvalMessage, error, *gue.Job) (bool, time.Duration, error) {
	return func(ctx context.Context, m *messages.EvalMessage, err error, j *gue.Job) (bool, time.Duration, error) {
		if j.ErrorCount > 3 {
			goapp.Log.Info().Str("ID", m.ID).Int32("errCount", j.ErrorCount).Msg("retries exhausted")
			errSend := data.MsgSender.SendMessage(ctx, &messages.ResultMessage{
				QueueMessage: amessages.QueueMessage{ID: m.ID},
				Status:       status.RQFailed.String(), Error: fmt.Sprintf("can't submit: %s", err)},
				messages.DefaultOpts(messages.WorkFail))
			return false, 0, errSend
		}
		return true, 0, nil
	}
}

func handleComplete(ctx context.Context, m *messages.ResultMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling complete")
	res, err := evaluation.Normalize(m.Result)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", m.ID).Msg("bad scorer result")
		return completeRequest(ctx, m.ID, status.RQFailed, nil, "can't read scorer result", data)
	}
	return completeRequest(ctx, m.ID, status.RQCompleted, res, "", data)
}

func handleFail(ctx context.Context, m *messages.ResultMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling fail")
	errMsg := m.Error
	if errMsg == "" {
		errMsg = "evaluation failed"
	}
	return completeRequest(ctx, m.ID, status.RQFailed, nil, errMsg, data)
}

// completeRequest writes the terminal request state and mirrors it to the linked session.
// A request already finalized is left untouched, the first outcome wins
func completeRequest(ctx context.Context, id string, st status.ReqStatus, res *evaluation.Result, errMsg string, data *ServiceData) error {
	req, err := data.DB.LoadEvalRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("can't load request: %w", err)
	}
	if req == nil {
		return fmt.Errorf("unknown request '%s'", id)
	}
	if status.ReqFrom(req.Status).IsTerminal() {
		goapp.Log.Info().Str("ID", id).Str("status", req.Status).Msg("already finalized - skip")
		return nil
	}
	var payload []byte
	if res != nil {
		payload, err = json.Marshal(res)
		if err != nil {
			return fmt.Errorf("can't marshal result: %w", err)
		}
	}
	req.Status = st.String()
	req.Result = payload
	req.ErrorMessage = utils.ToSQLStr(errMsg)
	if err := data.DB.UpdateEvalRequest(ctx, req); err != nil {
		return fmt.Errorf("can't update request: %w", err)
	}
	if req.SessionID.Valid {
		if err := updateSession(ctx, req.SessionID.String, st, res, payload, data); err != nil {
			return err
		}
	}
	err = data.MsgSender.SendMessage(ctx, &messages.EvalMessage{QueueMessage: amessages.QueueMessage{ID: id}},
		messages.DefaultOpts(messages.Change))
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	if !req.TestMode {
		err = data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
			QueueMessage: amessages.QueueMessage{ID: id},
			Type:         informType(st), At: time.Now()}, messages.DefaultOpts(messages.Inform))
		if err != nil {
			return fmt.Errorf("can't send msg: %w", err)
		}
	}
	goapp.Log.Info().Str("ID", id).Str("status", req.Status).Msg("finalized")
	return nil
}

func updateSession(ctx context.Context, id string, st status.ReqStatus, res *evaluation.Result, payload []byte, data *ServiceData) error {
	ses, err := data.DB.LoadSession(ctx, id)
	if err != nil {
		return fmt.Errorf("can't load session: %w", err)
	}
	if ses == nil {
		goapp.Log.Warn().Str("sessionID", id).Msg("linked session missing")
		return nil
	}
	if st == status.RQCompleted {
		ses.Status = status.Completed.String()
	} else {
		ses.Status = status.Failed.String()
	}
	if res != nil {
		ses.Score = utils.ToSQLInt32(int32(res.Overall()))
		ses.Passed = utils.ToSQLBool(res.Passed)
		ses.EvalPayload = payload
	}
	if err := data.DB.UpdateSessionResult(ctx, ses); err != nil {
		return fmt.Errorf("can't update session result: %w", err)
	}
	return nil
}

func informType(st status.ReqStatus) string {
	if st == status.RQCompleted {
		return amessages.InformTypeFinished
	}
	return amessages.InformTypeFailed
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.ScorerPr == nil {
		return fmt.Errorf("no scorer provider")
	}
	return nil
}
