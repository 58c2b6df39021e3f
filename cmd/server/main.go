package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"recall/internal/activity"
	"recall/internal/cache"
	"recall/internal/facts/store/calls"
	"recall/internal/facts/store/memories"
	"recall/internal/facts/store/policies"
	"recall/internal/identity/resolver"
	"recall/internal/identity/store/links"
	"recall/internal/identity/store/sessions"
	"recall/internal/intel"
	"recall/internal/memory"
	"recall/internal/platform/config"
	"recall/internal/platform/httpserver"
	"recall/internal/platform/logger"
	"recall/internal/platform/metrics"
	"recall/internal/platform/middleware"
	redisclient "recall/internal/platform/redis"
	"recall/internal/schema"
	"recall/internal/sessionctx"
	httptransport "recall/internal/transport/http"
	verification "recall/internal/verification/service"
	verificationstore "recall/internal/verification/store"
	"recall/internal/workspace"
)

// main wires the dependency graph and owns the server lifecycle. Business
// logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Debug)
	m := metrics.New()

	if cfg.SubjectSalt == "" {
		log.Warn("SUBJECT_SALT is empty, phone-derived subject ids are unsalted")
	}

	ctx := context.Background()

	var (
		db           *sql.DB
		capabilities *schema.Capabilities

		linkStore    links.Store
		sessionStore sessions.Store
		memStore     memories.Store
		callStore    calls.Store
		policyStore  policies.Store
		verifyStore  verificationstore.Store
		contextStore sessionctx.Store
		keyStore     middleware.KeyStore
	)

	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("database open failed", "error", err.Error())
			os.Exit(1)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.Error("database ping failed", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()

		capabilities = schema.Detect(db, log)
		linkStore = links.NewPostgresStore(db)
		sessionStore = sessions.NewPostgresStore(db)
		memStore = memories.NewPostgresStore(db, capabilities.FactType)
		callStore = calls.NewPostgresStore(db)
		policyStore = policies.NewPostgresStore(db)
		verifyStore = verificationstore.NewPostgresStore(db)
		contextStore = sessionctx.NewPostgresStore(db)
		keyStore = workspace.NewPostgresKeyStore(db)
	} else {
		log.Warn("DATABASE_URL is empty, running on in-memory stores")
		capabilities = schema.Static()
		linkStore = links.NewInMemoryStore()
		sessionStore = sessions.NewInMemoryStore()
		memStore = memories.NewInMemoryStore()
		callStore = calls.NewInMemoryStore()
		policyStore = policies.NewInMemoryStore()
		verifyStore = verificationstore.NewInMemoryStore()
		contextStore = sessionctx.NewInMemoryStore()
	}

	var distributed cache.Distributed
	rdb, err := redisclient.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err.Error())
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		distributed = cache.NewRedisDistributed(rdb.Client, cfg.CacheTTL)
		log.Info("distributed cache enabled")
	}

	var publisher activity.Publisher = activity.Noop{}
	if len(cfg.KafkaSeeds) > 0 {
		kafka, err := activity.NewKafkaPublisher(cfg.KafkaSeeds, cfg.ActivityTopic, log)
		if err != nil {
			log.Error("kafka connect failed", "error", err.Error())
			os.Exit(1)
		}
		defer kafka.Close()
		publisher = kafka
		log.Info("activity events enabled", "topic", cfg.ActivityTopic)
	}

	// The resolver and the memory service reference each other: merges
	// must evict the merged subjects' caches. Bind through a closure.
	var memoryService *memory.Service
	subjectResolver, err := resolver.New(
		linkStore,
		sessionStore,
		capabilities.SubjectLinks,
		cfg.SubjectSalt,
		log,
		resolver.WithRewriters(memStore, callStore, verifyStore),
		resolver.WithActivity(publisher),
		resolver.WithInvalidator(func(ctx context.Context, workspaceID, subjectID string) {
			if memoryService != nil {
				memoryService.InvalidateSubject(ctx, workspaceID, subjectID)
			}
		}),
	)
	if err != nil {
		log.Error("resolver init failed", "error", err.Error())
		os.Exit(1)
	}

	verificationService, err := verification.New(
		verifyStore,
		verification.LogSender{Logger: log},
		sessionStore,
		verification.NewStateCache(cfg.CacheTTL),
		cfg.OTPSecret,
		log,
		verification.WithLinker(subjectResolver),
		verification.WithMetrics(m),
	)
	if err != nil {
		log.Error("verification init failed", "error", err.Error())
		os.Exit(1)
	}

	memoryOpts := []memory.Option{
		memory.WithActivity(publisher),
		memory.WithMetrics(m),
		memory.WithFillerThreshold(cfg.FillerThreshold),
	}
	if cfg.OpenAIAPIKey != "" {
		analyzer, err := intel.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.IntelModel)
		if err != nil {
			log.Error("analyzer init failed", "error", err.Error())
			os.Exit(1)
		}
		memoryOpts = append(memoryOpts, memory.WithAnalyzer(analyzer))
		log.Info("transcript analysis enabled", "model", cfg.IntelModel)
	}

	memoryService, err = memory.New(
		subjectResolver,
		verificationService,
		memStore,
		callStore,
		policyStore,
		memory.NewSnapshotCache(cfg.CacheTTL),
		cache.NewHierarchy(cache.NewSubjectCache[memory.BootstrapPayload](cfg.CacheTTL), distributed, m, log),
		cache.NewHierarchy(cache.NewSubjectCache[memory.QueryPayload](cfg.CacheTTL), distributed, m, log),
		log,
		memoryOpts...,
	)
	if err != nil {
		log.Error("memory service init failed", "error", err.Error())
		os.Exit(1)
	}

	contextService, err := sessionctx.New(contextStore, sessionctx.NewContextCache(cfg.CacheTTL), log)
	if err != nil {
		log.Error("context service init failed", "error", err.Error())
		os.Exit(1)
	}

	handler, err := httptransport.NewHandler(
		memoryService,
		verificationService,
		subjectResolver,
		sessionStore,
		contextService,
		publisher,
		log,
	)
	if err != nil {
		log.Error("handler init failed", "error", err.Error())
		os.Exit(1)
	}

	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Keys:             keyStore,
		GlobalAPIKey:     cfg.GlobalAPIKey,
		DefaultWorkspace: cfg.DefaultWorkspace,
		Metrics:          m,
		Logger:           log,
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting recall", "addr", cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", "error", err.Error())
		os.Exit(1)
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
