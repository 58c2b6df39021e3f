package memory

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recall/internal/cache"
	factmodels "recall/internal/facts/models"
	"recall/internal/facts/policy"
	"recall/internal/facts/store/calls"
	"recall/internal/facts/store/memories"
	"recall/internal/facts/store/policies"
	"recall/internal/identity/resolver"
	"recall/internal/identity/store/links"
	"recall/internal/identity/store/sessions"
	"recall/internal/schema"
	vmodels "recall/internal/verification/models"
	dErrors "recall/pkg/domainerrors"
)

type stubVerification struct {
	level vmodels.Level
}

func (v *stubVerification) State(context.Context, string, string, string) vmodels.State {
	return vmodels.State{Level: v.level}
}

type MemoryServiceSuite struct {
	suite.Suite
	memStore     *memories.InMemoryStore
	callStore    *calls.InMemoryStore
	policyStore  *policies.InMemoryStore
	verification *stubVerification
	service      *Service
}

func (s *MemoryServiceSuite) SetupTest() {
	logger := slog.Default()

	s.memStore = memories.NewInMemoryStore()
	s.callStore = calls.NewInMemoryStore()
	s.policyStore = policies.NewInMemoryStore()
	s.verification = &stubVerification{level: vmodels.LevelNone}

	res, err := resolver.New(
		links.NewInMemoryStore(),
		sessions.NewInMemoryStore(),
		schema.Static().SubjectLinks,
		"test-salt",
		logger,
		resolver.WithRewriters(s.memStore, s.callStore),
	)
	s.Require().NoError(err)

	service, err := New(
		res,
		s.verification,
		s.memStore,
		s.callStore,
		s.policyStore,
		NewSnapshotCache(time.Minute),
		cache.NewHierarchy(cache.NewSubjectCache[BootstrapPayload](time.Minute), nil, cache.NopStats, logger),
		cache.NewHierarchy(cache.NewSubjectCache[QueryPayload](time.Minute), nil, cache.NopStats, logger),
		logger,
	)
	s.Require().NoError(err)
	s.service = service
}

func TestMemoryServiceSuite(t *testing.T) {
	suite.Run(t, new(MemoryServiceSuite))
}

func (s *MemoryServiceSuite) seedFact(subjectID, text, factType string) {
	_, err := s.memStore.Insert(context.Background(), factmodels.Fact{
		WorkspaceID: "ws-1",
		SubjectID:   subjectID,
		Text:        text,
		Confidence:  0.8,
		Type:        factType,
		UpdatedAt:   time.Now(),
	})
	s.Require().NoError(err)
}

func (s *MemoryServiceSuite) TestBootstrapAnonymousCallerGetsEmptyPayload() {
	payload, err := s.service.Bootstrap(context.Background(), "ws-1", BootstrapRequest{})
	s.Require().NoError(err)
	s.Empty(payload.ProfileFacts)
	s.Empty(payload.Facts)
	s.Equal(vmodels.LevelNone, payload.VerificationLevel)
	s.False(payload.ProtectedFactsAvailable)
}

func (s *MemoryServiceSuite) TestBootstrapWithholdsFactsUntilVerified() {
	s.seedFact("alice@example.com", "Prefers morning calls", "scheduling_preference")
	s.seedFact("alice@example.com", "Budget mentioned: $500", "budget")

	payload, err := s.service.Bootstrap(context.Background(), "ws-1", BootstrapRequest{
		SessionID: "sess-1",
		Email:     "alice@example.com",
	})
	s.Require().NoError(err)
	s.Empty(payload.ProfileFacts)
	s.Equal(2, payload.ProtectedCount)
	s.True(payload.ProtectedFactsAvailable)
}

func (s *MemoryServiceSuite) TestBootstrapDisclosesWhenVerified() {
	s.verification.level = vmodels.LevelVerified
	s.seedFact("alice@example.com", "Prefers morning calls", "scheduling_preference")

	payload, err := s.service.Bootstrap(context.Background(), "ws-1", BootstrapRequest{
		SessionID: "sess-1",
		Email:     "alice@example.com",
	})
	s.Require().NoError(err)
	s.Len(payload.ProfileFacts, 1)
	s.Zero(payload.ProtectedCount)
	s.Equal(vmodels.LevelVerified, payload.VerificationLevel)
}

func (s *MemoryServiceSuite) TestBootstrapInlineWriteAcksAndPersists() {
	s.verification.level = vmodels.LevelVerified

	payload, err := s.service.Bootstrap(context.Background(), "ws-1", BootstrapRequest{
		SessionID: "sess-1",
		Email:     "alice@example.com",
		Facts:     []factmodels.IncomingFact{{Text: "Runs a roofing company", Confidence: 0.9}},
	})
	s.Require().NoError(err)
	s.True(payload.WriteAck)
	s.Len(payload.ProfileFacts, 1)
	s.Equal("Runs a roofing company", payload.ProfileFacts[0].Text)
}

func (s *MemoryServiceSuite) TestBootstrapSessionSnapshotSkipsStores() {
	s.verification.level = vmodels.LevelVerified
	s.seedFact("alice@example.com", "Prefers morning calls", "scheduling_preference")

	req := BootstrapRequest{SessionID: "sess-1", Email: "alice@example.com"}
	first, err := s.service.Bootstrap(context.Background(), "ws-1", req)
	s.Require().NoError(err)

	s.seedFact("alice@example.com", "Has two dogs", "pet_details")

	second, err := s.service.Bootstrap(context.Background(), "ws-1", req)
	s.Require().NoError(err)
	s.Len(second.ProfileFacts, len(first.ProfileFacts))
}

func (s *MemoryServiceSuite) TestBootstrapTrimsKnowledgeBaseFacts() {
	s.verification.level = vmodels.LevelVerified
	long := "First sentence about pricing. Second sentence about plans. Third sentence nobody should see."
	s.seedFact("alice@example.com", long, "kb_summary")

	payload, err := s.service.Bootstrap(context.Background(), "ws-1", BootstrapRequest{
		Email: "alice@example.com",
	})
	s.Require().NoError(err)
	s.Require().Len(payload.ProfileFacts, 1)
	s.NotContains(payload.ProfileFacts[0].Text, "Third sentence")
}

func (s *MemoryServiceSuite) TestQueryBroadQuestionReturnsEverything() {
	s.verification.level = vmodels.LevelVerified
	s.seedFact("alice@example.com", "Prefers morning calls", "scheduling_preference")
	s.seedFact("alice@example.com", "Has two dogs", "pet_details")

	payload, err := s.service.Query(context.Background(), "ws-1", QueryRequest{
		Email: "alice@example.com",
		Query: "what do you know about me",
	})
	s.Require().NoError(err)
	s.Len(payload.Facts, 2)
}

func (s *MemoryServiceSuite) TestQuerySubstringFilters() {
	s.verification.level = vmodels.LevelVerified
	s.seedFact("alice@example.com", "Prefers morning calls", "scheduling_preference")
	s.seedFact("alice@example.com", "Has two dogs", "pet_details")

	payload, err := s.service.Query(context.Background(), "ws-1", QueryRequest{
		Email: "alice@example.com",
		Query: "dogs",
	})
	s.Require().NoError(err)
	s.Require().Len(payload.Facts, 1)
	s.Equal("Has two dogs", payload.Facts[0].Text)
}

func (s *MemoryServiceSuite) TestQueryUnverifiedSignalsProtectedFacts() {
	s.seedFact("alice@example.com", "Has two dogs", "pet_details")

	payload, err := s.service.Query(context.Background(), "ws-1", QueryRequest{
		Email: "alice@example.com",
		Query: "dogs",
	})
	s.Require().NoError(err)
	s.Empty(payload.Facts)
	s.True(payload.ProtectedFactsAvailable)
}

func (s *MemoryServiceSuite) TestUpsertRequiresIdentifier() {
	_, err := s.service.Upsert(context.Background(), "ws-1", UpsertRequest{
		Facts: []factmodels.IncomingFact{{Text: "orphan fact"}},
	})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *MemoryServiceSuite) TestUpsertStoresAndDeduplicates() {
	result, err := s.service.Upsert(context.Background(), "ws-1", UpsertRequest{
		Email: "alice@example.com",
		Facts: []factmodels.IncomingFact{
			{Text: "Runs a roofing company"},
			{Text: "runs a roofing company"},
			{Text: "Prefers morning calls"},
		},
	})
	s.Require().NoError(err)
	s.Equal(2, result.Stored)
	s.False(result.Deferred)
}

func (s *MemoryServiceSuite) TestUpsertHonorsDisabledPolicy() {
	s.policyStore.Set("ws-1", []policy.Override{
		{FactType: "pet_details", Enabled: false},
	})

	result, err := s.service.Upsert(context.Background(), "ws-1", UpsertRequest{
		Email: "alice@example.com",
		Facts: []factmodels.IncomingFact{{Text: "Has a dog named Rex", Type: "pet_details"}},
	})
	s.Require().NoError(err)
	s.Zero(result.Stored)
	s.Equal(1, result.Suppressed)
}

func (s *MemoryServiceSuite) TestUpsertEnforcesPerTypeCap() {
	ctx := context.Background()
	s.seedFact("alice@example.com", "Has a dog", "pet_details")
	s.seedFact("alice@example.com", "Has a cat", "pet_details")

	result, err := s.service.Upsert(ctx, "ws-1", UpsertRequest{
		Email: "alice@example.com",
		Facts: []factmodels.IncomingFact{{Text: "Has a parrot pet", Type: "pet_details"}},
	})
	s.Require().NoError(err)
	s.Zero(result.Stored)
	s.Equal(1, result.Suppressed)
}

func (s *MemoryServiceSuite) TestUpsertTranscriptMinesContactsAndSummarizes() {
	ctx := context.Background()
	transcript := "Customer: you can reach me at Bob@Example.com. Agent: noted. Customer: my budget is around $2,000 for this."

	result, err := s.service.Upsert(ctx, "ws-1", UpsertRequest{
		Email:      "alice@example.com",
		CallID:     "call-1",
		Transcript: transcript,
	})
	s.Require().NoError(err)
	s.GreaterOrEqual(result.Stored, 2)

	facts, err := s.memStore.Recent(ctx, "ws-1", "alice@example.com", 0)
	s.Require().NoError(err)

	var sawEmail, sawBudget bool
	for _, f := range facts {
		if f.Text == "bob@example.com" {
			sawEmail = true
			s.Equal("contact_email", f.Type)
		}
		if f.Type == "budget" {
			sawBudget = true
		}
	}
	s.True(sawEmail)
	s.True(sawBudget)

	summaries, err := s.callStore.RecentSummaries(ctx, "ws-1", "alice@example.com", 0)
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.NotEmpty(summaries[0].Summary)
}

func (s *MemoryServiceSuite) TestUpsertLinksMinedEmailAlias() {
	ctx := context.Background()
	s.seedFact("bob@example.com", "Existing fact under contact subject", "general")

	_, err := s.service.Upsert(ctx, "ws-1", UpsertRequest{
		VisitorID: "v-123",
		SessionID: "sess-9",
		Facts:     []factmodels.IncomingFact{{Text: "Email is bob@example.com", Type: "contact_email"}},
	})
	s.Require().NoError(err)

	// The visitor's history migrated under the email subject.
	facts, err := s.memStore.Recent(ctx, "ws-1", "bob@example.com", 0)
	s.Require().NoError(err)
	s.GreaterOrEqual(len(facts), 2)
}

func (s *MemoryServiceSuite) TestUpsertDeferredLoggingCompletesInBackground() {
	ctx := context.Background()

	result, err := s.service.Upsert(ctx, "ws-1", UpsertRequest{
		Email:        "alice@example.com",
		CallID:       "call-7",
		Summary:      "Spoke about onboarding next steps.",
		DeferLogging: true,
	})
	s.Require().NoError(err)
	s.True(result.Deferred)

	s.Eventually(func() bool {
		summaries, err := s.callStore.RecentSummaries(ctx, "ws-1", "alice@example.com", 0)
		return err == nil && len(summaries) == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *MemoryServiceSuite) TestUpsertInvalidatesCachedBootstrap() {
	s.verification.level = vmodels.LevelVerified
	ctx := context.Background()

	first, err := s.service.Bootstrap(ctx, "ws-1", BootstrapRequest{Email: "alice@example.com"})
	s.Require().NoError(err)
	s.Empty(first.ProfileFacts)

	_, err = s.service.Upsert(ctx, "ws-1", UpsertRequest{
		Email: "alice@example.com",
		Facts: []factmodels.IncomingFact{{Text: "Runs a roofing company"}},
	})
	s.Require().NoError(err)

	second, err := s.service.Bootstrap(ctx, "ws-1", BootstrapRequest{Email: "alice@example.com"})
	s.Require().NoError(err)
	s.Len(second.ProfileFacts, 1)
}
