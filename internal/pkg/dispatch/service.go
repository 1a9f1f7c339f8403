package dispatch

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/evaly/scorepipe/internal/pkg/api"
	"github.com/evaly/scorepipe/internal/pkg/messages"
	"github.com/evaly/scorepipe/internal/pkg/persistence"
	"github.com/evaly/scorepipe/internal/pkg/status"
	"github.com/evaly/scorepipe/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// EvalDispatcher starts evaluations for finished sessions
type EvalDispatcher interface {
	Dispatch(ctx context.Context, in *api.SessionEnd) (string, error)
	ReEvaluate(ctx context.Context, sessionID, callerID string, admin bool, opts api.DispatchOptions) (string, error)
}

// ReqDB loads evaluation requests
type ReqDB interface {
	LoadEvalRequest(ctx context.Context, id string) (*persistence.EvalRequest, error)
}

// Data keeps data required for service work
type Data struct {
	Port           int
	Dispatcher     EvalDispatcher
	DB             ReqDB
	MsgSender      MsgSender
	CallbackSecret string
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP score dispatch service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 60 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Dispatcher == nil {
		return errors.New("no dispatcher")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.CallbackSecret == "" {
		return fmt.Errorf("no callback secret")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("score_dispatch", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/evaluate", evaluate(data))
	e.POST("/reevaluate/:id", reevaluate(data))
	e.POST("/callback", callback(data))
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

type result struct {
	RequestID string `json:"requestId"`
}

type rejection struct {
	Reason string `json:"reason"`
}

func evaluate(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("evaluate method")()
		ctx := c.Request().Context()

		var in api.SessionEnd
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't parse input")
		}
		id, err := data.Dispatcher.Dispatch(ctx, &in)
		if err != nil {
			return dispatchError(err)
		}
		return c.JSON(http.StatusOK, result{RequestID: id})
	}
}

func reevaluate(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("reevaluate method")()
		ctx := c.Request().Context()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no ID")
		}
		caller := c.QueryParam("user")
		admin := utils.ParamTrue(c.QueryParam("admin"))
		rID, err := data.Dispatcher.ReEvaluate(ctx, id, caller, admin, api.DispatchOptions{
			ForceFullEvaluation: utils.ParamTrue(c.QueryParam("force")),
			TestMode:            utils.ParamTrue(c.QueryParam("testMode"))})
		if err != nil {
			return dispatchError(err)
		}
		return c.JSON(http.StatusOK, result{RequestID: rID})
	}
}

func dispatchError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyEvaluating):
		return echo.NewHTTPError(http.StatusConflict, rejection{Reason: "already_evaluating"})
	case errors.Is(err, ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrNoTranscript):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError)
}

func callback(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("callback method")()
		ctx := c.Request().Context()

		secret := c.Request().Header.Get(api.HdrScorerSecret)
		if subtle.ConstantTimeCompare([]byte(secret), []byte(data.CallbackSecret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		var in api.Callback
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't parse input")
		}
		if in.RequestID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no requestId")
		}
		st := status.ReqFrom(in.Status)
		if !st.IsTerminal() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("wrong status '%s'", goapp.Sanitize(in.Status)))
		}
		req, err := data.DB.LoadEvalRequest(ctx, in.RequestID)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if req == nil {
			return echo.NewHTTPError(http.StatusNotFound, "unknown requestId")
		}
		if status.ReqFrom(req.Status).IsTerminal() {
			return echo.NewHTTPError(http.StatusConflict, rejection{Reason: "ALREADY_FINALIZED"})
		}
		queue := messages.WorkComplete
		if st == status.RQFailed {
			queue = messages.WorkFail
		}
		err = data.MsgSender.SendMessage(ctx, &messages.ResultMessage{QueueMessage: amessages.QueueMessage{ID: in.RequestID},
			Status: in.Status, Result: in.Result, Error: in.Error}, messages.DefaultOpts(queue))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, result{RequestID: in.RequestID})
	}
}
