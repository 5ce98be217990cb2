package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/trainload/internal/config"
	"github.com/2beens/trainload/internal/db"
	"github.com/2beens/trainload/internal/middleware"
	"github.com/2beens/trainload/internal/telemetry/metrics"
	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload/achievements"
	"github.com/2beens/trainload/internal/trainload/dispatch"
	"github.com/2beens/trainload/internal/trainload/fatigue"
	"github.com/2beens/trainload/internal/trainload/rankings"
	"github.com/2beens/trainload/internal/trainload/records"
	"github.com/2beens/trainload/internal/trainload/recovery"
	"github.com/2beens/trainload/internal/trainload/stats"
	"github.com/2beens/trainload/internal/trainload/store"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	ingestSecret      string // used by the workout tracking clients posting events
	readSecret        string // used by read-only dashboard clients

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client

	trainloadStore  *store.Postgres
	catalog         *achievements.Catalog
	recoveryCurve   fatigue.Curve
	streakLocation  *time.Location
	rankingsService *rankings.Service
	dispatcher      *dispatch.Dispatcher

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	IngestSecret            string
	ReadSecret              string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("trainload", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0) // will be set to 1 when all is set and ran

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "trainload-backend")
	if err != nil {
		return nil, err
	}

	catalog, err := achievements.LoadCatalog(params.Config.AchievementsCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load achievements catalog: %w", err)
	}
	log.Debugf("achievements catalog loaded, %d achievements", len(catalog.All()))

	streakLocation, err := time.LoadLocation(params.Config.StreakTimezone)
	if err != nil {
		return nil, fmt.Errorf("load streak timezone [%s]: %w", params.Config.StreakTimezone, err)
	}

	recoveryCurve := make(fatigue.Curve, 0, len(params.Config.RecoveryCurve))
	for _, bp := range params.Config.RecoveryCurve {
		recoveryCurve = append(recoveryCurve, fatigue.Breakpoint{
			Fatigue: bp.Fatigue,
			Hours:   bp.Hours,
		})
	}
	if err := recoveryCurve.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recovery curve: %w", err)
	}

	trainloadStore := store.NewPostgres(dbPool)
	rankingsCache := rankings.NewCache(
		rdb,
		time.Duration(params.Config.ExerciseStatsTTLMinutes)*time.Minute,
	)
	rankingsService := rankings.NewService(
		trainloadStore,
		rankingsCache,
		params.Config.PercentileMinSampleSize,
		params.Config.LeaderboardDefaultLimit,
	)

	dispatcher := dispatch.New(
		trainloadStore,
		recoveryCurve,
		catalog,
		streakLocation,
		metricsManager,
		rankingsService,
	)

	return &Server{
		config:       params.Config,
		dbPool:       dbPool,
		ingestSecret: params.IngestSecret,
		readSecret:   params.ReadSecret,

		redisClient: rdb,

		trainloadStore:  trainloadStore,
		catalog:         catalog,
		recoveryCurve:   recoveryCurve,
		streakLocation:  streakLocation,
		rankingsService: rankingsService,
		dispatcher:      dispatcher,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("trainload-router"))

	eventsHandler := dispatch.NewHandler(s.dispatcher)
	r.HandleFunc("/trainload/events/set", eventsHandler.HandleSetRecorded).
		Methods("POST", "OPTIONS").Name("set-recorded")
	r.HandleFunc("/trainload/events/workout", eventsHandler.HandleWorkoutCompleted).
		Methods("POST", "OPTIONS").Name("workout-completed")

	// full recomputes are expensive, rate limit them per instance
	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	recalcRouter := r.PathPrefix("/trainload/recalculate").Subrouter()
	recalcRouter.HandleFunc("/{userId}", eventsHandler.HandleRecalculateAll).
		Methods("POST", "OPTIONS").Name("recalculate-all")
	recalcRouter.Use(middleware.RateLimit(
		reqRateLimiter, "recalculate",
		s.config.RecalculateAllowedPerMin, s.metricsManager,
	))

	recoveryHandler := recovery.NewHandler(
		recovery.NewLedger(s.trainloadStore, s.recoveryCurve),
	)
	r.HandleFunc("/trainload/recovery/{userId}", recoveryHandler.HandleGetStatus).
		Methods("GET", "OPTIONS").Name("recovery-status")

	recordsHandler := records.NewHandler(
		records.NewTracker(s.trainloadStore),
	)
	r.HandleFunc("/trainload/records/{userId}", recordsHandler.HandleList).
		Methods("GET", "OPTIONS").Name("list-records")
	r.HandleFunc("/trainload/records/{userId}/{exerciseId}", recordsHandler.HandleGet).
		Methods("GET", "OPTIONS").Name("get-record")

	statsHandler := stats.NewHandler(
		stats.NewService(s.trainloadStore, s.catalog, s.streakLocation),
	)
	r.HandleFunc("/trainload/stats/{userId}", statsHandler.HandleGet).
		Methods("GET", "OPTIONS").Name("user-stats")

	achievementsHandler := achievements.NewHandler(
		achievements.NewEngine(s.trainloadStore, s.catalog),
	)
	r.HandleFunc("/trainload/achievements/{userId}", achievementsHandler.HandleListProgress).
		Methods("GET", "OPTIONS").Name("list-achievements")
	r.HandleFunc("/trainload/achievements/{userId}/unnotified", achievementsHandler.HandleUnnotified).
		Methods("GET", "OPTIONS").Name("unnotified-achievements")
	r.HandleFunc("/trainload/achievements/{userId}/notified", achievementsHandler.HandleMarkNotified).
		Methods("POST", "OPTIONS").Name("notify-achievements")

	rankingsHandler := rankings.NewHandler(s.rankingsService, s.metricsManager)
	r.HandleFunc("/trainload/rankings/{userId}", rankingsHandler.HandleAllRankings).
		Methods("GET", "OPTIONS").Name("all-rankings")
	r.HandleFunc("/trainload/rankings/{userId}/{exerciseId}", rankingsHandler.HandleExerciseRanking).
		Methods("GET", "OPTIONS").Name("exercise-ranking")
	r.HandleFunc("/trainload/statistics/exercise/{exerciseId}", rankingsHandler.HandleExerciseStatistics).
		Methods("GET", "OPTIONS").Name("exercise-statistics")
	r.HandleFunc("/trainload/leaderboard/{exerciseId}", rankingsHandler.HandleLeaderboard).
		Methods("GET", "OPTIONS").Name("leaderboard")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		s.ingestSecret,
		s.readSecret,
	)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
