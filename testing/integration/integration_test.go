//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/evaly/scorepipe/internal/pkg/api"
	"github.com/evaly/scorepipe/internal/pkg/persistence"
	sapi "github.com/evaly/scorepipe/internal/pkg/scorer/api"
	"github.com/evaly/scorepipe/internal/pkg/status"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	dispatchURL    string
	statusURL      string
	dbURL          string
	callbackSecret string
	httpclient     *http.Client
}

var cfg config

func TestMain(m *testing.M) {
	cfg.dispatchURL = GetEnvOrFail("DISPATCH_URL")
	cfg.statusURL = GetEnvOrFail("STATUS_URL")
	cfg.dbURL = GetEnvOrFail("DB_URL")
	cfg.callbackSecret = GetEnvOrFail("CALLBACK_SECRET")
	cfg.httpclient = &http.Client{Timeout: time.Second * 30}

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	WaitForOpenOrFail(tCtx, cfg.dbURL)
	WaitForOpenOrFail(tCtx, cfg.dispatchURL)
	WaitForOpenOrFail(tCtx, cfg.statusURL)
	waitForDB(tCtx, cfg.dbURL)

	//start mock scorer - not in this docker compose
	l, ts := startMockScorer(9876)
	defer ts.Close()
	defer l.Close()

	os.Exit(m.Run())
}

func TestDispatchLive(t *testing.T) {
	t.Parallel()
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.dispatchURL, "/live", nil)), http.StatusOK)
}

func TestStatusLive(t *testing.T) {
	t.Parallel()
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/live", nil)), http.StatusOK)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.dispatchURL, "/evaluate",
		newSessionEnd(longTranscript())))
	CheckCode(t, resp, http.StatusOK)
	var er evaluateResponse
	Decode(t, resp, &er)
	assert.NotEmpty(t, er.RequestID)
}

func TestEvaluate_Linked(t *testing.T) {
	t.Parallel()
	se := newSessionEnd(longTranscript())
	SeedSession(t, cfg.dbURL, &persistence.Session{ID: se.SessionID, UserID: se.UserID,
		Status: status.Ended.String(), Created: time.Now()})
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.dispatchURL, "/evaluate", se))
	CheckCode(t, resp, http.StatusOK)
	var er evaluateResponse
	Decode(t, resp, &er)
	st := waitForStatus(t, er.RequestID, "completed")
	assert.Equal(t, se.SessionID, st.SessionID)
}

func TestEvaluate_Fail_NoSession(t *testing.T) {
	t.Parallel()
	se := newSessionEnd(longTranscript())
	se.SessionID = ""
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.dispatchURL, "/evaluate", se)),
		http.StatusBadRequest)
}

func TestEvaluate_Short(t *testing.T) {
	t.Parallel()
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.dispatchURL, "/evaluate",
		newSessionEnd("User: hi\n")))
	CheckCode(t, resp, http.StatusOK)
	var er evaluateResponse
	Decode(t, resp, &er)
	st := waitForStatus(t, er.RequestID, "completed")
	assert.Contains(t, string(st.Result), `"passed":false`)
}

func TestStatus_Check_None(t *testing.T) {
	t.Parallel()
	st := getState(t, "10")
	assert.Equal(t, "NOT_FOUND", st.Error)
	assert.Equal(t, "10", st.RequestID)
}

func TestStatus_Check(t *testing.T) {
	t.Parallel()
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.dispatchURL, "/evaluate",
		newSessionEnd(longTranscript())))
	CheckCode(t, resp, http.StatusOK)
	var er evaluateResponse
	Decode(t, resp, &er)
	require.NotEmpty(t, er.RequestID)
	st := waitForStatus(t, er.RequestID, "completed")
	assert.Contains(t, string(st.Result), `"score"`)
}

func TestTranscript(t *testing.T) {
	t.Parallel()
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.dispatchURL, "/evaluate",
		newSessionEnd(longTranscript())))
	CheckCode(t, resp, http.StatusOK)
	var er evaluateResponse
	Decode(t, resp, &er)
	tResp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/transcript/"+er.RequestID, nil))
	CheckCode(t, tResp, http.StatusOK)
	b, err := io.ReadAll(tResp.Body)
	require.Nil(t, err)
	assert.Contains(t, string(b), "User:")
}

func TestTranscript_None(t *testing.T) {
	t.Parallel()
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/transcript/10", nil)),
		http.StatusNotFound)
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.dispatchURL, "/evaluate",
		newSessionEnd(longTranscript())))
	CheckCode(t, resp, http.StatusOK)
	var er evaluateResponse
	Decode(t, resp, &er)
	c := Subscribe(t, cfg.statusURL, er.RequestID)
	defer c.Close()
	require.Nil(t, c.SetReadDeadline(time.Now().Add(time.Second*10)))
	var st evalState
	require.Nil(t, c.ReadJSON(&st))
	assert.Equal(t, er.RequestID, st.RequestID)
}

func TestCallback_Unauthorized(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.dispatchURL, "/callback",
		api.Callback{RequestID: "10", Status: "completed"})
	req.Header.Set(api.HdrScorerSecret, "wrong")
	CheckCode(t, Invoke(t, cfg.httpclient, req), http.StatusUnauthorized)
}

type evaluateResponse struct {
	RequestID string `json:"requestId"`
}

type evalState struct {
	RequestID string          `json:"requestId"`
	Status    string          `json:"status"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func getState(t *testing.T, id string) evalState {
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/evaluation/"+id, nil))
	CheckCode(t, resp, http.StatusOK)
	var st evalState
	Decode(t, resp, &st)
	return st
}

func waitForStatus(t *testing.T, id, wanted string) evalState {
	t.Helper()
	dur := time.Second * 10
	tm := time.After(dur)
	for {
		select {
		case <-tm:
			require.Failf(t, "Fail", "Not %s in %v", wanted, dur)
		default:
			st := getState(t, id)
			if st.Status == wanted {
				return st
			}
			time.Sleep(time.Second)
		}
	}
}

func newSessionEnd(transcript string) api.SessionEnd {
	return api.SessionEnd{SessionID: uuid.NewString(), UserID: "test-user",
		Transcript: transcript, DurationSeconds: 120}
}

func longTranscript() string {
	return strings.Repeat("User: labas vakaras, kaip sekasi\nCoach: hello there\n", 5)
}

func startMockScorer(port int) (net.Listener, *httptest.Server) {
	// create a listener with the desired port.
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("can't start mock scorer: %v", err)
	}
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sd sapi.SubmitData
		if err := json.NewDecoder(r.Body).Decode(&sd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// score arrives later via the callback endpoint
		go postCallback(sd.RequestID)
	}))

	ts.Listener.Close()
	ts.Listener = l

	// Start the server.
	ts.Start()
	log.Printf("started mock scorer on port: %d", port)
	return l, ts
}

func postCallback(id string) {
	cb := api.Callback{RequestID: id, Status: "completed",
		Result: json.RawMessage(`{"score":75,"passed":true,"feedback":"ok"}`)}
	body, _ := json.Marshal(cb)
	req, err := http.NewRequest(http.MethodPost, cfg.dispatchURL+"/callback", strings.NewReader(string(body)))
	if err != nil {
		log.Printf("can't make callback request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HdrScorerSecret, cfg.callbackSecret)
	resp, err := cfg.httpclient.Do(req)
	if err != nil {
		log.Printf("can't post callback: %v", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}
