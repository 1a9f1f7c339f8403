package notifier

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evaly/scorepipe/internal/pkg/persistence"
	"github.com/evaly/scorepipe/internal/pkg/status"
	"github.com/evaly/scorepipe/internal/pkg/test"
	"github.com/evaly/scorepipe/internal/pkg/test/mocks"
	"github.com/evaly/scorepipe/internal/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	wsHandlerMock *mockWSConnHandler
	dbMock        *mocks.DB
	filerMock     *mocks.Filer
	tData         *Data
	tEcho         *echo.Echo
	tResp         *httptest.ResponseRecorder
)

func initTest(t *testing.T) {
	wsHandlerMock = &mockWSConnHandler{}
	dbMock = &mocks.DB{}
	filerMock = &mocks.Filer{}
	tData = &Data{}
	tData.DB = dbMock
	tData.Filer = filerMock
	tData.WSHandler = wsHandlerMock
	tEcho = initRoutes(tData)
	tResp = httptest.NewRecorder()
	dbMock.On("LoadEvalRequest", mock.Anything, mock.Anything).Return(&persistence.EvalRequest{RequestID: "1",
		SessionID: utils.ToSQLStr("sID"), Status: status.RQCompleted.String(),
		Result: []byte(`{"score":70,"passed":true}`)}, nil)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	testCode(t, req, 404)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/evaluation/1", nil)
	testCode(t, req, 405)
}

func Test_Evaluation_Returns(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/evaluation/1", nil)
	resp := testCode(t, req, http.StatusOK)
	res := test.Decode[evalState](t, resp.Result())
	assert.Equal(t, evalState{RequestID: "1", Status: "completed", SessionID: "sID",
		Result: json.RawMessage(`{"score":70,"passed":true}`)}, res)
}

func Test_Evaluation_Empty(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/evaluation/2", nil)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadEvalRequest", mock.Anything, mock.Anything).Return(nil, nil)
	resp := testCode(t, req, http.StatusOK)
	res := test.Decode[evalState](t, resp.Result())
	assert.Equal(t, evalState{RequestID: "2", Status: "NOT_FOUND", Error: "NOT_FOUND"}, res)
}

func Test_Evaluation_Fail(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/evaluation/1", nil)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadEvalRequest", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia"))
	_ = testCode(t, req, http.StatusInternalServerError)
}

func Test_Transcript_Returns(t *testing.T) {
	initTest(t)
	filerMock.On("LoadFile", mock.Anything, "1/transcript.txt").Return(rsc("User: labas"), nil)
	req := httptest.NewRequest(http.MethodGet, "/transcript/1", nil)
	resp := testCode(t, req, http.StatusOK)
	assert.Equal(t, "User: labas", resp.Body.String())
}

func Test_Transcript_NotFound(t *testing.T) {
	initTest(t)
	filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})
	req := httptest.NewRequest(http.MethodGet, "/transcript/1", nil)
	testCode(t, req, http.StatusNotFound)
}

func Test_Transcript_Fail(t *testing.T) {
	initTest(t)
	filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia"))
	req := httptest.NewRequest(http.MethodGet, "/transcript/1", nil)
	testCode(t, req, http.StatusInternalServerError)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	testCode(t, req, 200)
}

func Test_PushCurrentState(t *testing.T) {
	initTest(t)
	connMock := &mockWSConn{}
	connMock.On("WriteJSON", mock.Anything).Return(nil)
	PushCurrentState(dbMock)("1", connMock)
	require.Equal(t, 1, len(connMock.Calls))
	res := connMock.Calls[0].Arguments[0].(*evalState)
	assert.Equal(t, "1", res.RequestID)
	assert.Equal(t, status.RQCompleted.String(), res.Status)
}

func Test_PushCurrentState_NoRequest(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadEvalRequest", mock.Anything, mock.Anything).Return(nil, nil)
	connMock := &mockWSConn{}
	PushCurrentState(dbMock)("1", connMock)
	require.Equal(t, 0, len(connMock.Calls))
}

func testCode(t *testing.T, req *http.Request, code int) *httptest.ResponseRecorder {
	t.Helper()
	tEcho.ServeHTTP(tResp, req)
	require.Equal(t, code, tResp.Code)
	return tResp
}

func Test_validate(t *testing.T) {
	initTest(t)
	type args struct {
		data *Data
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{data: &Data{DB: dbMock, Filer: filerMock, WSHandler: wsHandlerMock}}, wantErr: false},
		{name: "Fail Handler", args: args{data: &Data{DB: dbMock, Filer: filerMock}}, wantErr: true},
		{name: "Fail Filer", args: args{data: &Data{DB: dbMock, WSHandler: wsHandlerMock}}, wantErr: true},
		{name: "Fail DB", args: args{data: &Data{Filer: filerMock, WSHandler: wsHandlerMock}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.args.data); (err != nil) != tt.wantErr {
				t.Errorf("StartWebServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockWSConnHandler struct{ mock.Mock }

func (m *mockWSConnHandler) HandleConnection(wc WsConn) error {
	args := m.Called(wc)
	return args.Error(0)
}

func (m *mockWSConnHandler) GetConnections(id string) ([]WsConn, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]WsConn), args.Bool(1)
}
