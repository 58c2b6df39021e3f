package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recall/internal/activity"
	"recall/internal/identity/resolver"
	"recall/internal/identity/store/sessions"
	"recall/internal/memory"
	"recall/internal/platform/metrics"
	"recall/internal/platform/middleware"
	"recall/internal/sessionctx"
	verification "recall/internal/verification/service"
)

const requestTimeout = 15 * time.Second

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	memory       *memory.Service
	verification *verification.Service
	resolver     *resolver.Resolver
	sessions     sessions.Store
	contexts     *sessionctx.Service
	activity     activity.Publisher
	logger       *slog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	memoryService *memory.Service,
	verificationService *verification.Service,
	subjectResolver *resolver.Resolver,
	sessionStore sessions.Store,
	contextService *sessionctx.Service,
	publisher activity.Publisher,
	logger *slog.Logger,
) (*Handler, error) {
	if memoryService == nil {
		return nil, errors.New("memory service is required")
	}
	if verificationService == nil {
		return nil, errors.New("verification service is required")
	}
	if subjectResolver == nil {
		return nil, errors.New("resolver is required")
	}
	if sessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if contextService == nil {
		return nil, errors.New("context service is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if publisher == nil {
		publisher = activity.Noop{}
	}
	return &Handler{
		memory:       memoryService,
		verification: verificationService,
		resolver:     subjectResolver,
		sessions:     sessionStore,
		contexts:     contextService,
		activity:     publisher,
		logger:       logger,
	}, nil
}

// Register mounts the authenticated routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/memory/bootstrap", h.handleBootstrap)
	r.Post("/memory/query", h.handleQuery)
	r.Post("/memory/upsert", h.handleUpsert)
	r.Post("/memory/transcript", h.handleTranscript)

	r.Post("/auth/request-otp", h.handleRequestOTP)
	r.Post("/auth/verify-otp", h.handleVerifyOTP)

	r.Post("/identity/passthrough", h.handlePassthrough)
	r.Post("/identity/session", h.handleSessionIdentity)
	r.Post("/identity/validate", h.handleValidate)
	r.Post("/identity/preload", h.handlePreload)

	r.Post("/context/set", h.handleContextSet)
	r.Post("/handoff/dispatch", h.handleHandoff)
}

// RouterConfig carries the transport-level wiring the router needs.
type RouterConfig struct {
	Keys             middleware.KeyStore
	GlobalAPIKey     string
	DefaultWorkspace string
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// NewRouter wires the middleware chain, health and metrics endpoints, and
// the authenticated API surface.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Latency(cfg.Metrics))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "recall"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAPIKey(cfg.Keys, cfg.GlobalAPIKey, cfg.DefaultWorkspace, cfg.Logger))
		h.Register(r)
	})

	return r
}
