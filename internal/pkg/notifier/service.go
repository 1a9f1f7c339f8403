package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"

	"github.com/evaly/scorepipe/internal/pkg/persistence"
	"github.com/evaly/scorepipe/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DB loads evaluation requests
type DB interface {
	LoadEvalRequest(ctx context.Context, id string) (*persistence.EvalRequest, error)
}

// Filer retrieves transcript snapshots
type Filer interface {
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
}

// WSConnHandler WebSocketConnection wrapper
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(id string) ([]WsConn, bool)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	Filer     Filer
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP score status service at %d", data.Port)
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

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("score_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/evaluation/:id", evaluationHandler(data))
	e.GET("/transcript/:id", transcriptHandler(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribeHandler(data))

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

type evalState struct {
	RequestID string          `json:"requestId"`
	Status    string          `json:"status"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func evaluationHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("evaluation method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		req, err := data.DB.LoadEvalRequest(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		var res evalState
		if req == nil {
			res = evalState{RequestID: id, Status: "NOT_FOUND", Error: "NOT_FOUND"}
		} else {
			res = *mapRequest(req)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func mapRequest(req *persistence.EvalRequest) *evalState {
	return &evalState{RequestID: req.RequestID, Status: req.Status, SessionID: utils.FromSQLStr(req.SessionID),
		Result: req.Result, Error: utils.FromSQLStr(req.ErrorMessage)}
}

func transcriptHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transcript method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		name, err := utils.MakeTranscriptName(id)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Wrong ID")
		}
		f, err := data.Filer.LoadFile(c.Request().Context(), name)
		if err != nil {
			var minioErr minio.ErrorResponse
			if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
				return echo.NewHTTPError(http.StatusNotFound, "No transcript")
			}
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		defer func() { _ = f.Close() }()
		return c.Stream(http.StatusOK, echo.MIMETextPlainCharsetUTF8, f)
	}
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}

// PushCurrentState builds the subscribe callback, a fresh subscriber gets
// the stored request state at once instead of waiting for the next event
func PushCurrentState(db DB) func(id string, conn WsConn) {
	return func(id string, conn WsConn) {
		ctx, cf := context.WithTimeout(context.Background(), time.Second*10)
		defer cf()
		req, err := db.LoadEvalRequest(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return
		}
		if req == nil {
			goapp.Log.Debug().Str("ID", id).Msg("no request for subscriber")
			return
		}
		if err := sendMsg(conn, mapRequest(req)); err != nil {
			goapp.Log.Error().Err(err).Send()
		}
	}
}
