package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrisdd2/federated-login/api"
	"github.com/chrisdd2/federated-login/appconfig"
	"github.com/chrisdd2/federated-login/internal/services"
	"github.com/chrisdd2/federated-login/webui"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func must(err error) {
	if err != nil {
		log.Fatalln(err)
	}
}
func must2[T any](a T, err error) T {
	if err != nil {
		log.Fatalln(err)
	}
	return a
}
func ternary[T any](c bool, a T, b T) T {
	if c {
		return a
	}
	return b
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	appCfg := appconfig.AppConfig{}

	var configFile, envFile string
	flag.StringVar(&configFile, "config-file", "", "config file path (default app.conf.yml)")
	flag.StringVar(&envFile, "env-file", "", "dotenv file path (default .env)")
	flag.Parse()
	slog.Info("info", "version", version, "commit", commit, "date", date)

	appCfg.SetEnvironmentVariablePrefix("passport")
	must(appCfg.LoadDefaults())
	if envFile != "" {
		appCfg.EnvFile = envFile
	}
	must(appCfg.LoadDotEnv(appCfg.EnvFile))
	must(appCfg.LoadFromEnv())
	if configFile != "" {
		appCfg.ConfigFile = configFile
	}

	f, err := os.Open(appCfg.ConfigFile)
	if err == nil {
		must(appCfg.LoadFromYaml(f))
		f.Close()
	}

	logLvl := ternary(appCfg.DevelopmentMode, slog.LevelDebug, slog.LevelInfo)
	logger := ternary(appCfg.DevelopmentMode,
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLvl})),
		slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLvl})),
	)
	slog.SetDefault(logger)

	if appCfg.DevelopmentMode {
		appCfg.DebugPrint()
	}

	ctx, cancel := shutdownContext(context.Background())
	defer cancel(nil)

	// storage
	storageSvc, revocations, err := withCache(ctx, &appCfg, must2(openStorage(ctx, &appCfg)))
	must(err)
	defer func() {
		if err := storageSvc.Close(); err != nil {
			slog.Info("storage", "close_error", err.Error())
		}
	}()

	keyCache, err := NewFileCache("federated-login")
	if err != nil {
		slog.Debug("cache", "cannot_create_dir", "federated-login", "err", err.Error())
	}
	signKey := must2(loadSignKey(&appCfg, keyCache))

	idps := services.NewRegistry(must2(authServices(ctx, &appCfg))...)
	if len(idps.List()) == 0 {
		slog.Warn("auth", "enabled", 0, "hint", "set PASSPORT__AUTH__GOOGLE__CLIENT_ID and PASSPORT__AUTH__GOOGLE__CLIENT_SECRET")
	}
	resolver := services.NewIdentityResolver(storageSvc)
	sessions := services.NewSessionBinder(storageSvc, signKey, time.Duration(appCfg.Session.MaxAgeSeconds)*time.Second).
		WithRevocations(revocations)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Collector(metrics.CollectorOpts{
		Host:  false,
		Proto: true,
		Skip: func(r *http.Request) bool {
			return r.Method == http.MethodOptions
		},
	}))

	r.Mount("/api", api.V1Api(idps, sessions, appCfg.Session.CookieName))
	r.Mount("/", webui.Router(&appCfg, version, idps, resolver, sessions))

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", metrics.Handler())
	metricsRouter.Handle("/metrics/app", promhttp.Handler())

	metricsSrv := gracefullServer{
		Name: "http_metrics",
		Server: http.Server{
			Handler: metricsRouter,
			Addr:    appCfg.MetricsAddr,
		},
	}
	go func() {
		metricsSrv.Listen(cancel)
	}()

	srv := gracefullServer{
		Name: "http",
		Server: http.Server{
			Handler:           r,
			Addr:              appCfg.ListenAddr,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		srv.Listen(cancel)
	}()

	// wait for exit
	<-ctx.Done()

	if cause := context.Cause(ctx); cause != nil {
		slog.Info("shutting_down", "cause", cause.Error())
	}

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second*5)
	defer timeoutCancel()
	srv.Shutdown(ctx)
	metricsSrv.Shutdown(ctx)
}

func shutdownContext(parent context.Context) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
		case v := <-sigChan:
			cancel(fmt.Errorf("%s signal", v))
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

type gracefullServer struct {
	Name   string
	Server http.Server
}

func (g *gracefullServer) Listen(cancel context.CancelCauseFunc) {
	slog.Info(g.Name, "address", g.Server.Addr, "url", fmt.Sprintf("http://%s", g.Server.Addr))
	err := g.Server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Info("http", "error", err.Error())
		cancel(err)
	}
}
func (g *gracefullServer) Shutdown(ctx context.Context) {
	if err := g.Server.Shutdown(ctx); err != nil {
		slog.Info(g.Name, "shutdown_error", err.Error())
	}
}
