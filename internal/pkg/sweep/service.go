package sweep

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/evaly/scorepipe/internal/pkg/messages"
	"github.com/evaly/scorepipe/internal/pkg/status"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// StaleProvider returns IDs of evaluations stuck in processing
type StaleProvider interface {
	GetStale(ctx context.Context) ([]string, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, *messages.Options) error
}

// Data keeps data required for service work
type Data struct {
	Port      int
	Stale     StaleProvider
	MsgSender MsgSender
	RunEvery  time.Duration
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msgf("Starting HTTP score sweep service")
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

// StartSweepTimer fails stale evaluations every RunEvery interval
// returns channel closed after the loop exits
func StartSweepTimer(ctx context.Context, data *Data) (<-chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if data.RunEvery < time.Second {
		return nil, errors.Errorf("wrong runEvery duration %v", data.RunEvery)
	}
	goapp.Log.Info().Dur("runEvery", data.RunEvery).Msg("Starting sweep timer")
	res := make(chan struct{})
	go func() {
		defer close(res)
		ticker := time.NewTicker(data.RunEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				goapp.Log.Info().Msg("Stopped sweep timer")
				return
			case <-ticker.C:
				if _, err := doSweep(ctx, data); err != nil {
					goapp.Log.Error().Err(err).Msg("sweep failed")
				}
			}
		}
	}()
	return res, nil
}

// doSweep fails all stale evaluations, returns the count of swept IDs
func doSweep(ctx context.Context, data *Data) (int, error) {
	ids, err := data.Stale.GetStale(ctx)
	if err != nil {
		return 0, fmt.Errorf("can't load stale IDs: %w", err)
	}
	var errAll error
	swept := 0
	for _, id := range ids {
		goapp.Log.Warn().Str("ID", id).Msg("stale evaluation")
		err := data.MsgSender.SendMessage(ctx, &messages.ResultMessage{
			QueueMessage: amessages.QueueMessage{ID: id},
			Status:       status.RQFailed.String(), Error: "evaluation timed out"},
			messages.DefaultOpts(messages.WorkFail))
		if err != nil {
			errAll = multierr.Append(errAll, fmt.Errorf("can't send msg for %s: %w", id, err))
			continue
		}
		swept++
	}
	if swept > 0 {
		goapp.Log.Info().Int("count", swept).Msg("swept stale evaluations")
	}
	return swept, errAll
}

func validate(data *Data) error {
	if data.Stale == nil {
		return errors.New("no stale provider")
	}
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("score_sweep", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/sweep", sweep(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type sweepResult struct {
	Swept int `json:"swept"`
}

func sweep(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("sweep method")()

		swept, err := doSweep(c.Request().Context(), data)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't sweep")
		}
		return c.JSON(http.StatusOK, sweepResult{Swept: swept})
	}
}
