package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	sapi "github.com/evaly/scorepipe/internal/pkg/scorer/api"
	"github.com/cenkalti/backoff/v4"
)

// Client communicates with the external scoring collaborator
type Client struct {
	httpclient *http.Client
	submitURL  string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a scorer client
func NewClient(submitURL string) (*Client, error) {
	res := Client{}
	if submitURL == "" {
		return nil, fmt.Errorf("no submitURL")
	}
	if !strings.HasPrefix(submitURL, "http") {
		return nil, fmt.Errorf("no http in submitURL")
	}
	res.submitURL = submitURL
	res.timeout = time.Second * 30
	res.httpclient = scorerHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

// Submit hands a transcript to the scoring collaborator.
// Success means the handshake was accepted, the score arrives via callback
func (sp *Client) Submit(ctx context.Context, data *sapi.SubmitData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("can't marshal data: %w", err)
	}
	_, err = goapp.InvokeWithBackoff(ctx,
		func() (interface{}, bool, error) {
			ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
			defer cancelF()
			req, err := http.NewRequest(http.MethodPost, sp.submitURL, bytes.NewReader(body))
			if err != nil {
				return nil, false, err
			}
			req.Header.Set("Content-Type", "application/json")
			req = req.WithContext(ctx)
			goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
			resp, err := sp.httpclient.Do(req)
			if err != nil {
				return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
			}
			defer func() {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
				_ = resp.Body.Close()
			}()
			if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
				err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
				return nil, goapp.IsRetryableCode(resp.StatusCode), err
			}
			return nil, false, nil
		}, sp.backoff())
	return err
}

func scorerHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
