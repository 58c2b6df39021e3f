// Package memory orchestrates the read and write paths: identity
// resolution, verification gating, the cache hierarchy, fact policy, and
// transcript ingestion behind three operations (bootstrap, query, upsert).
package memory

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"recall/internal/activity"
	"recall/internal/cache"
	factmodels "recall/internal/facts/models"
	"recall/internal/facts/policy"
	"recall/internal/facts/store/calls"
	"recall/internal/facts/store/memories"
	"recall/internal/facts/store/policies"
	identitymodels "recall/internal/identity/models"
	"recall/internal/intel"
	"recall/internal/platform/metrics"
	vmodels "recall/internal/verification/models"
	phonepkg "recall/pkg/phone"
)

const (
	profileLimit = 20
	summaryLimit = 3
	defaultTopK  = 5
	maxTopK      = 20

	defaultFillerThreshold = 200 * time.Millisecond
)

// SubjectResolver resolves identifiers to canonical subjects and merges
// aliases discovered during writes.
type SubjectResolver interface {
	Resolve(ctx context.Context, workspaceID string, hint identitymodels.Hint) (string, error)
	Link(ctx context.Context, workspaceID, a, b string) (string, bool, error)
	PhoneSubject(raw string) string
}

// VerificationReader reads a session's verification standing.
type VerificationReader interface {
	State(ctx context.Context, workspaceID, sessionID, subjectID string) vmodels.State
}

// Service is the orchestration core.
type Service struct {
	resolver     SubjectResolver
	verification VerificationReader
	memories     memories.Store
	calls        calls.Store
	overrides    policies.Store

	snapshots  *cache.SessionCache[BootstrapPayload]
	bootstraps *cache.Hierarchy[BootstrapPayload]
	queries    *cache.Hierarchy[QueryPayload]

	analyzer intel.Analyzer
	activity activity.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	fillerThreshold time.Duration
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAnalyzer enables model-backed transcript analysis.
func WithAnalyzer(a intel.Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithActivity attaches the activity event publisher.
func WithActivity(p activity.Publisher) Option {
	return func(s *Service) { s.activity = p }
}

// WithMetrics attaches service counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithFillerThreshold sets the latency above which payloads carry the
// filler hint.
func WithFillerThreshold(d time.Duration) Option {
	return func(s *Service) { s.fillerThreshold = d }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the memory service.
func New(
	resolver SubjectResolver,
	verification VerificationReader,
	memoryStore memories.Store,
	callStore calls.Store,
	overrideStore policies.Store,
	snapshots *cache.SessionCache[BootstrapPayload],
	bootstraps *cache.Hierarchy[BootstrapPayload],
	queries *cache.Hierarchy[QueryPayload],
	logger *slog.Logger,
	opts ...Option,
) (*Service, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if verification == nil {
		return nil, errors.New("verification reader is required")
	}
	if memoryStore == nil {
		return nil, errors.New("memory store is required")
	}
	if callStore == nil {
		return nil, errors.New("call store is required")
	}
	if snapshots == nil || bootstraps == nil || queries == nil {
		return nil, errors.New("caches are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Service{
		resolver:        resolver,
		verification:    verification,
		memories:        memoryStore,
		calls:           callStore,
		overrides:       overrideStore,
		snapshots:       snapshots,
		bootstraps:      bootstraps,
		queries:         queries,
		activity:        activity.Noop{},
		logger:          logger,
		fillerThreshold: defaultFillerThreshold,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSnapshotCache builds the session-tier cache for bootstrap snapshots.
func NewSnapshotCache(ttl time.Duration) *cache.SessionCache[BootstrapPayload] {
	return cache.NewSessionCache[BootstrapPayload](ttl)
}

// InvalidateSubject evicts every cache tier holding the subject's data.
// The resolver calls this after merges; writes call it before re-reading.
func (s *Service) InvalidateSubject(ctx context.Context, workspaceID, subjectID string) {
	if subjectID == "" {
		return
	}
	s.bootstraps.Invalidate(ctx, workspaceID, subjectID)
	s.queries.Invalidate(ctx, workspaceID, subjectID)
	s.snapshots.InvalidateFunc(workspaceID, func(p BootstrapPayload) bool {
		return p.SubjectID == subjectID
	})
}

// policiesFor merges workspace overrides over the default policy table.
func (s *Service) policiesFor(ctx context.Context, workspaceID string) policy.Map {
	defaults := policy.Defaults()
	if s.overrides == nil {
		return defaults
	}
	overrides, err := s.overrides.Overrides(ctx, workspaceID)
	if err != nil {
		s.logger.WarnContext(ctx, "policy override load failed, using defaults",
			"workspace_id", workspaceID,
			"error", err.Error(),
		)
		return defaults
	}
	return policy.Merge(defaults, overrides)
}

func (s *Service) latencyHint(start time.Time) string {
	if time.Since(start) > s.fillerThreshold {
		return LatencyFiller
	}
	return LatencyFast
}

// broadQuery matches "tell me everything" style questions that should
// return the subject's facts unfiltered.
var broadQuery = regexp.MustCompile(`(?i)^(everything|all|anything|what do (you|i) know|tell me about|my (info|profile|data|details|facts)|who am i|recall|remember)`)

// searchTerm normalizes a retrieval query: broad questions search
// unfiltered, everything else searches as a substring.
func searchTerm(query string) string {
	query = strings.TrimSpace(query)
	if query == "" || broadQuery.MatchString(query) {
		return ""
	}
	return query
}

func clampTopK(topK int) int {
	if topK <= 0 {
		return defaultTopK
	}
	if topK > maxTopK {
		return maxTopK
	}
	return topK
}

var (
	emailAlias = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phoneAlias = regexp.MustCompile(`\+?\d[\d\-()\s]{9,}`)
)

// persistFacts classifies, gates, caps, and writes a batch of facts, then
// links any contact values found in them to the subject.
func (s *Service) persistFacts(ctx context.Context, workspaceID, subjectID, agentID string, incoming []factmodels.IncomingFact, pol policy.Map) (stored, suppressed int) {
	incoming = policy.DedupeIncoming(incoming)
	if len(incoming) == 0 {
		return 0, 0
	}

	counts := make(map[string]int)
	var aliases []string

	for _, f := range incoming {
		factType := policy.ResolveType(f.Type, f.Text)
		if !pol.Allowed(factType) {
			suppressed++
			continue
		}

		if limit := pol.MaxFor(factType); limit > 0 {
			if _, primed := counts[factType]; !primed {
				n, err := s.memories.CountByType(ctx, workspaceID, subjectID, factType)
				if err != nil {
					s.logger.WarnContext(ctx, "fact count failed, cap unenforced",
						"fact_type", factType,
						"error", err.Error(),
					)
				}
				counts[factType] = n
			}
			if counts[factType] >= limit {
				suppressed++
				continue
			}
		}

		confidence := f.Confidence
		if confidence == 0 {
			confidence = factmodels.DefaultConfidence
		}
		written, err := s.memories.Insert(ctx, factmodels.Fact{
			WorkspaceID: workspaceID,
			SubjectID:   subjectID,
			AgentID:     agentID,
			Text:        f.Text,
			Confidence:  confidence,
			Type:        factType,
			UpdatedAt:   s.now(),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "fact insert failed",
				"fact_type", factType,
				"error", err.Error(),
			)
			suppressed++
			continue
		}
		if !written {
			suppressed++
			continue
		}
		stored++
		counts[factType]++

		switch factType {
		case "contact_email":
			if match := emailAlias.FindString(f.Text); match != "" {
				aliases = append(aliases, strings.ToLower(match))
			}
		case "contact_phone":
			if match := phoneAlias.FindString(f.Text); match != "" {
				if normalized := phonepkg.Normalize(match); normalized != "" {
					if alias := s.resolver.PhoneSubject(normalized); alias != "" {
						aliases = append(aliases, alias)
					}
				}
			}
		}
	}

	for _, alias := range aliases {
		if alias == subjectID {
			continue
		}
		if _, _, err := s.resolver.Link(ctx, workspaceID, subjectID, alias); err != nil {
			s.logger.WarnContext(ctx, "contact alias link failed",
				"subject_id", subjectID,
				"error", err.Error(),
			)
		}
	}

	s.metrics.FactWritten(stored)
	s.metrics.FactSuppressed(suppressed)
	return stored, suppressed
}
