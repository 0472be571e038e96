package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	trackershandler "github.com/agronova/tracker-backend/domains/trackers/be/handler"
	trackersrepo "github.com/agronova/tracker-backend/domains/trackers/be/repo"
	trackersservice "github.com/agronova/tracker-backend/domains/trackers/be/service"
	usershandler "github.com/agronova/tracker-backend/domains/users/be/handler"
	usersrepo "github.com/agronova/tracker-backend/domains/users/be/repo"
	usersservice "github.com/agronova/tracker-backend/domains/users/be/service"
	platformauth "github.com/agronova/tracker-backend/platform/go/auth"
	platformlogging "github.com/agronova/tracker-backend/platform/go/logging"
	platformmiddleware "github.com/agronova/tracker-backend/platform/go/middleware"
	"github.com/agronova/tracker-backend/platform/go/persistence"
	"github.com/agronova/tracker-backend/platform/go/service"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns      int32         `env:"DB_MIN_CONNS" envDefault:"0"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"tracker-backend"`
	JWTTTL          time.Duration `env:"JWT_TTL" envDefault:"24h"`
	BootstrapSchema bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString: cfg.DatabaseURL,
		MaxConns:   cfg.DBMaxConns,
		MinConns:   cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapSchema {
		if err := persistence.BootstrapSchema(ctx, pool); err != nil {
			logger.Fatal("bootstrap schema", zap.Error(err))
		}
	}

	baseRepo, err := persistence.NewRepository(pool, logger)
	if err != nil {
		logger.Fatal("init repository", zap.Error(err))
	}

	entityService := service.New(baseRepo, logger)

	issuer, err := platformauth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Fatal("init token issuer", zap.Error(err))
	}

	userRepo := usersrepo.NewPostgresRepository(baseRepo)
	userService := usersservice.New(entityService, userRepo, issuer, logger)
	userHTTPHandler := usershandler.New(userService, logger)

	trackerRepo := trackersrepo.NewPostgresRepository(baseRepo)
	trackerService := trackersservice.New(trackerRepo, logger)
	trackerHTTPHandler := trackershandler.New(entityService, trackerService, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()

	// Login lives outside the JWT middleware; everything else requires a token.
	apiRouter.Mount("/auth", userHTTPHandler.PublicRoutes())

	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.JWT(issuer.VerifyFunc(), nil))
		r.Use(platformmiddleware.RequestTrace)

		r.Mount("/users", userHTTPHandler.Routes())
		r.Mount("/trackers", trackerHTTPHandler.Routes())
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
