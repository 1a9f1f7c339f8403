package scorer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sapi "github.com/evaly/scorepipe/internal/pkg/scorer/api"
	"github.com/evaly/scorepipe/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{name: "OK", args: "http://srv:8080/evaluate", wantErr: false},
		{name: "empty", args: "", wantErr: true},
		{name: "no http", args: "srv:8080", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Submit(t *testing.T) {
	var got sapi.SubmitData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Nil(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	cl, err := NewClient(srv.URL)
	require.Nil(t, err)
	err = cl.Submit(test.Ctx(t), &sapi.SubmitData{RequestID: "rID", SessionID: "sID",
		Transcript: "User: olia", Metadata: sapi.Metadata{UserID: "uID", UserMessages: 1}})
	require.Nil(t, err)
	assert.Equal(t, "rID", got.RequestID)
	assert.Equal(t, "sID", got.SessionID)
	assert.Equal(t, "User: olia", got.Transcript)
	assert.Equal(t, "uID", got.Metadata.UserID)
}

func TestClient_Submit_fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	cl, err := NewClient(srv.URL)
	require.Nil(t, err)
	err = cl.Submit(test.Ctx(t), &sapi.SubmitData{RequestID: "rID", Transcript: "olia"})
	assert.NotNil(t, err)
}

func TestStaticProvider_Get(t *testing.T) {
	p, err := NewStaticProvider("http://srv:8080/evaluate")
	require.Nil(t, err)
	sc, name, err := p.Get()
	assert.Nil(t, err)
	assert.NotNil(t, sc)
	assert.Equal(t, "http://srv:8080/evaluate", name)
}

func TestNewStaticProvider_fail(t *testing.T) {
	_, err := NewStaticProvider("")
	assert.NotNil(t, err)
}
