package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"printflow/internal/api"
	"printflow/internal/auth"
	"printflow/internal/config"
	"printflow/internal/domain"
	"printflow/internal/metrics"
	"printflow/internal/report"
	"printflow/internal/store"
	"printflow/internal/upload"
	"printflow/internal/workflow"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := store.NewSQLiteRepo(db)

	grants, err := auth.LoadGrants(cfg.RolesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load roles")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedAdmin(ctx, repo, cfg.AdminEmail); err != nil {
		log.Fatal().Err(err).Msg("seed admin")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := workflow.NewEngine(repo, repo, workflow.WithMetrics(m))

	var uploader api.Uploader
	if cfg.Upload.Endpoint != "" {
		mu, err := upload.NewMinIO(ctx, cfg.Upload)
		if err != nil {
			log.Fatal().Err(err).Msg("artwork storage")
		}
		uploader = mu
	} else {
		log.Warn().Msg("no MinIO endpoint configured; artwork uploads disabled")
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewServer(api.Deps{
			Engine:    engine,
			Directory: repo,
			Gate:      auth.NewGate(grants),
			Uploader:  uploader,
			Gatherer:  reg,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
			Debug:     cfg.Debug,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.OverdueCron != "" {
		sweeper, err := report.NewSweeper(repo, cfg.OverdueCron, m)
		if err != nil {
			log.Fatal().Err(err).Msg("overdue sweep")
		}
		g.Go(func() error { return sweeper.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("exited with error")
	}
}

// seedAdmin creates the first admin so the API can be used at all.
func seedAdmin(ctx context.Context, repo *store.SQLiteRepo, email string) error {
	if email == "" {
		return nil
	}
	emps, err := repo.ListEmployees(ctx)
	if err != nil {
		return err
	}
	if len(emps) > 0 {
		return nil
	}
	admin, err := repo.CreateEmployee(ctx, domain.Employee{Name: "Administrator", Email: email, Role: domain.RoleAdmin})
	if err != nil {
		return err
	}
	log.Info().Str("employee_id", admin.ID).Str("email", email).Msg("seeded admin employee")
	return nil
}
