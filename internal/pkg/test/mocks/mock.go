package mocks

import (
	"context"
	"io"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/evaly/scorepipe/internal/pkg/messages"
	"github.com/evaly/scorepipe/internal/pkg/persistence"
	"github.com/evaly/scorepipe/internal/pkg/scorer/api"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return To[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertSession(ctx context.Context, item *persistence.Session) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LoadSession(ctx context.Context, id string) (*persistence.Session, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Session](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateSessionEnd(ctx context.Context, id, transcript string, durationSecs int) error {
	args := m.Called(ctx, id, transcript, durationSecs)
	return args.Error(0)
}

func (m *DB) UpdateSessionStatus(ctx context.Context, item *persistence.Session, newStatus string) error {
	args := m.Called(ctx, item, newStatus)
	if args.Error(0) == nil {
		item.Status = newStatus
		item.Version++
	}
	return args.Error(0)
}

func (m *DB) UpdateSessionResult(ctx context.Context, item *persistence.Session) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) InsertEvalRequest(ctx context.Context, item *persistence.EvalRequest) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LoadEvalRequest(ctx context.Context, id string) (*persistence.EvalRequest, error) {
	args := m.Called(ctx, id)
	return To[*persistence.EvalRequest](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateEvalRequest(ctx context.Context, item *persistence.EvalRequest) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LoadEmail(ctx context.Context, requestID string) (string, error) {
	args := m.Called(ctx, requestID)
	return args.String(0), args.Error(1)
}

func (m *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	args := m.Called(ctx, id, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	args := m.Called(ctx, id, msgType, value)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg amessages.Message, opts *messages.Options) error {
	args := m.Called(ctx, msg, opts)
	return args.Error(0)
}

// Scorer is scoring client mock
type Scorer struct{ mock.Mock }

func (m *Scorer) Submit(ctx context.Context, data *api.SubmitData) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

// ScorerProvider is scorer selection mock
type ScorerProvider struct{ mock.Mock }

func (m *ScorerProvider) Get() (api.Scorer, string, error) {
	args := m.Called()
	return To[api.Scorer](args.Get(0)), args.String(1), args.Error(2)
}

// StaleProvider is stale request IDs mock
type StaleProvider struct{ mock.Mock }

func (m *StaleProvider) GetStale(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return To[[]string](args.Get(0)), args.Error(1)
}

// To converts a mock arg to the wanted type, nil safe
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
