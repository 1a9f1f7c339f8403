package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/evaly/scorepipe/internal/pkg/postgres"
	"github.com/evaly/scorepipe/internal/pkg/sweep"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &sweep.Data{}
	data.Port = cfg.GetInt("port")
	data.RunEvery = cfg.GetDuration("timer.runEvery")

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.Stale, err = postgres.NewDBStaleProvider(dbPool, cfg.GetDuration("timer.expire"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init stale provider")
	}

	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	printBanner()

	goapp.Log.Info().Dur("duration", cfg.GetDuration("timer.expire")).Msg("expire")

	ctxTimer, cancelFunc := context.WithCancel(ctx)
	doneCh, err := sweep.StartSweepTimer(ctxTimer, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start timer")
	}
	err = sweep.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
   _____ ______ ____   _____   ______
  / ___// ____// __ \ / ___ \ / ____/
  \__ \/ /    / / / // /__/ // __/
 ___/ / /___ / /_/ // _, _ // /___
/____/\____/ \____//_/ |_|/_____/

   ______      _____  ___  ____
  / ___/ | /| / / _ \/ _ \/ __ \
 (__  )| |/ |/ /  __/  __/ /_/ /
/____/ |__/|__/\___/\___/ .___/    v: %s
                       /_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/evaly/scorepipe"))
}
