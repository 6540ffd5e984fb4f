package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ForceView/internal/auth"
	"ForceView/internal/backend"
	"ForceView/internal/config"
	"ForceView/internal/logging"
	"ForceView/internal/repo"
	"ForceView/internal/run"
	"ForceView/internal/web"
)

var wg sync.WaitGroup

func CORS(mux *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func openHistory(ctx context.Context, cfg config.Config, log zerolog.Logger) (repo.RunRepository, func()) {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("DATABASE_URL not set, keeping run history in memory")
		return repo.NewMemoryRunRepository(), func() {}
	}
	db, err := repo.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	pg := repo.NewPostgresRunDB(db)
	if err := pg.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate run history")
	}
	return pg, func() { db.Close() }
}

func HandleList(r *mux.Router, srv *web.Server, log zerolog.Logger) {
	r.Use(logging.AccessLog(log))
	srv.Routes(r)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("load .env")
	}
	if !cfg.EnvFileLoaded {
		log.Debug().Msg("no .env file, using environment only")
	}

	history, closeHistory := openHistory(ctx, cfg, log)
	defer closeHistory()

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, cfg.DisconnectTimeout, log.With().Str("component", "backend").Logger())
	runs := run.New(client, history, log.With().Str("component", "run").Logger())
	runs.Steps = cfg.RunSteps

	authEnv := &auth.Authenv{
		JWTkey:       auth.NewKey(cfg.TokenKey),
		PasswordHash: cfg.OperatorPasswordHash,
		SecureCookie: cfg.SecureCookie,
		Logger:       log.With().Str("component", "auth").Logger(),
	}
	if !authEnv.Enabled() {
		log.Warn().Msg("FORCEVIEW_OPERATOR_PASSWORD_HASH not set, actions are not protected")
	}

	srv := web.New(web.Deps{
		Backend:     client,
		Runs:        runs,
		History:     history,
		Auth:        authEnv,
		Limiter:     auth.NewIPRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		Logger:      log,
		BaseContext: ctx,
	})
	runs.OnSuccess = srv.Invalidate

	router := mux.NewRouter()
	HandleList(router, srv, log)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      CORS(router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.ListenAddr).Str("backend", cfg.BackendURL).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, closing active connections")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	wg.Wait()
	log.Info().Msg("server stopped")
}
