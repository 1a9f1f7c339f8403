package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/evaly/scorepipe/internal/pkg/consul"
	"github.com/evaly/scorepipe/internal/pkg/postgres"
	"github.com/evaly/scorepipe/internal/pkg/scorer"
	"github.com/evaly/scorepipe/internal/pkg/utils"
	"github.com/evaly/scorepipe/internal/pkg/worker"
	capi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 5)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	data.Filer, err = miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Secure: cfg.GetBool("filer.https")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	ctx, cancelFunc := context.WithCancel(context.Background())

	if cAddr := cfg.GetString("consul.address"); cAddr != "" {
		goapp.Log.Info().Str("address", cAddr).Msg("scorers from consul")
		cCfg := capi.DefaultConfig()
		cCfg.Address = cAddr
		pr, err := consul.NewProvider(cCfg, defaultV(cfg.GetString("consul.service"), "scorer"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init consul provider")
		}
		if _, err := pr.StartRegistryLoop(ctx, defaultV(cfg.GetDuration("consul.checkInterval"), time.Second*10)); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start consul loop")
		}
		data.ScorerPr = pr
	} else {
		data.ScorerPr, err = scorer.NewStaticProvider(cfg.GetString("scorer.url"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init scorer")
		}
	}

	printBanner()

	go utils.RunPerfEndpoint()

	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func defaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
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

                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/      v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/evaly/scorepipe"))
}
