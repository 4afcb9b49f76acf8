package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dwitter/apiserver/config"
	"github.com/dwitter/apiserver/internal/auth"
	"github.com/dwitter/apiserver/internal/db"
	"github.com/dwitter/apiserver/internal/handlers"
	"github.com/dwitter/apiserver/internal/logging"
	"github.com/dwitter/apiserver/internal/metrics"
	"github.com/dwitter/apiserver/internal/mq"
	"github.com/dwitter/apiserver/internal/notify"
	"github.com/dwitter/apiserver/internal/services"
	"github.com/dwitter/apiserver/internal/storage"
	"github.com/dwitter/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server wraps the HTTP server, its router and the resources behind them.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *logrus.Logger

	db         *sql.DB
	broker     *mq.MQ
	hub        *notify.Hub
	dispatcher *notify.Dispatcher

	stopRelay context.CancelFunc
	relayDone chan struct{}
}

// New wires repositories, services, event delivery and routes from cfg.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.New(cfg.Log.Level, cfg.Log.Format)
	}

	s := &Server{logger: logger}
	if err := s.build(ctx, cfg); err != nil {
		_ = s.Shutdown(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, cfg config.Config) error {
	m := metrics.New()

	var (
		userRepo  services.UserRepository
		tweetRepo services.TweetRepository
	)
	switch cfg.Store {
	case config.StorePostgres:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		s.db = dbConn
		userRepo = store.NewUserRepository(dbConn)
		tweetRepo = store.NewTweetRepository(dbConn)
	default:
		users := store.NewMemoryUserRepository()
		userRepo = users
		tweetRepo = store.NewMemoryTweetRepository(users)
	}

	issuer, err := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	if err != nil {
		return err
	}
	authService := services.NewAuthService(userRepo, auth.NewBcryptHasher(cfg.Bcrypt.SaltRounds), issuer)

	s.hub = notify.NewHub(s.logger, m)
	sinks, err := s.eventSinks(ctx, cfg)
	if err != nil {
		return err
	}
	s.dispatcher = notify.NewDispatcher(notify.DispatcherOptions{
		QueueSize:       cfg.Notify.QueueSize,
		DeliveryTimeout: cfg.Notify.DeliveryTimeout,
		Logger:          s.logger,
		Metrics:         m,
	}, sinks...)
	tweetService := services.NewTweetService(tweetRepo, s.dispatcher)

	authMiddleware := handlers.RequireAuth(authService, s.logger, m)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.RequestLogger(s.logger),
		m.Middleware,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", m.Handler())
	// WebSocket connections outlive any request timeout.
	router.Get("/events", handlers.EventsHandler(authService, s.hub, s.logger, m))
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authService, s.logger, m)
		})
		r.Route("/tweets", func(r chi.Router) {
			handlers.TweetRouter(r, tweetService, authMiddleware, s.logger)
		})
	})
	s.router = router

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// eventSinks picks where "tweets" events go. With a broker the local hub is
// fed by the relay instead of the dispatcher, so each instance pushes each
// event exactly once.
func (s *Server) eventSinks(ctx context.Context, cfg config.Config) ([]notify.Sink, error) {
	var sinks []notify.Sink

	broker, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if broker != nil {
		s.broker = broker
		sinks = append(sinks, notify.NewBrokerSink(broker, cfg.Notify.Channel))

		relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopRelay = cancel
		s.relayDone = make(chan struct{})
		relay := notify.NewRelay(broker, cfg.Notify.Channel, s.hub, s.logger)
		go func() {
			defer close(s.relayDone)
			_ = relay.Run(relayCtx)
		}()
	} else {
		sinks = append(sinks, s.hub)
	}

	archive, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		sinks = append(sinks, notify.NewArchiveSink(archive))
	}

	s.logger.WithFields(logrus.Fields{
		"store":   cfg.Store,
		"broker":  cfg.Notify.Broker,
		"archive": cfg.Notify.Archive,
	}).Info("event delivery configured")
	return sinks, nil
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains pending events, disconnects
// realtime clients and releases the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain events: %w", err))
		}
	}
	if s.stopRelay != nil {
		s.stopRelay()
		select {
		case <-s.relayDone:
		case <-ctx.Done():
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
