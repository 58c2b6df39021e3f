package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recall/internal/identity/models"
	"recall/internal/identity/store/sessions"
	vmodels "recall/internal/verification/models"
	"recall/internal/verification/store"
	dErrors "recall/pkg/domainerrors"
)

// capturingSender records the last code instead of delivering it.
type capturingSender struct {
	lastChannel string
	lastContact string
	lastCode    string
	fail        bool
}

func (c *capturingSender) Send(_ context.Context, _, channel, contact, code string) error {
	if c.fail {
		return context.DeadlineExceeded
	}
	c.lastChannel = channel
	c.lastContact = contact
	c.lastCode = code
	return nil
}

type fakeLinker struct {
	linked [][2]string
}

func (f *fakeLinker) Link(_ context.Context, _, a, b string) (string, bool, error) {
	f.linked = append(f.linked, [2]string{a, b})
	return a, true, nil
}

func (f *fakeLinker) PhoneSubject(raw string) string {
	if raw == "" {
		return ""
	}
	return "hash:" + raw
}

type VerificationSuite struct {
	suite.Suite
	store    *store.InMemoryStore
	sender   *capturingSender
	sessions *sessions.InMemoryStore
	linker   *fakeLinker
	clock    time.Time
	service  *Service
}

func TestVerificationSuite(t *testing.T) {
	suite.Run(t, new(VerificationSuite))
}

func (s *VerificationSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.sender = &capturingSender{}
	s.sessions = sessions.NewInMemoryStore()
	s.linker = &fakeLinker{}
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.service, err = New(
		s.store,
		s.sender,
		s.sessions,
		NewStateCache(30*time.Second),
		"test-secret",
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithLinker(s.linker),
		WithClock(func() time.Time { return s.clock }),
	)
	s.Require().NoError(err)
}

func (s *VerificationSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

func (s *VerificationSuite) request(sessionID string) *vmodels.Challenge {
	challenge, err := s.service.Request(context.Background(), "ws", sessionID, "subj-1", "sms", "+14155551234")
	s.Require().NoError(err)
	return challenge
}

func (s *VerificationSuite) TestRequest() {
	ctx := context.Background()

	s.Run("missing session is rejected", func() {
		_, err := s.service.Request(ctx, "ws", "", "subj-1", "sms", "+14155551234")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown channel is rejected", func() {
		_, err := s.service.Request(ctx, "ws", "sess-1", "subj-1", "carrier-pigeon", "+14155551234")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("no contact anywhere is rejected", func() {
		_, err := s.service.Request(ctx, "ws", "sess-1", "subj-1", "sms", "")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("contact falls back to session identity", func() {
		s.Require().NoError(s.sessions.Upsert(ctx, &models.SessionIdentity{
			WorkspaceID: "ws", SessionID: "sess-2", Phone: "+14155559999",
		}))

		challenge, err := s.service.Request(ctx, "ws", "sess-2", "subj-1", "sms", "")
		s.NoError(err)
		s.Equal("+14155559999", challenge.Contact)
		s.Equal("+14155559999", s.sender.lastContact)
	})

	s.Run("challenge carries expiry and hides the code", func() {
		challenge := s.request("sess-3")
		s.Equal(s.clock.Add(CodeTTL), challenge.ExpiresAt)
		s.Len(s.sender.lastCode, 6)
	})

	s.Run("delivery failure surfaces as unavailable and persists nothing", func() {
		s.sender.fail = true
		defer func() { s.sender.fail = false }()

		_, err := s.service.Request(ctx, "ws", "sess-4", "subj-1", "sms", "+14155551234")
		s.True(dErrors.Is(err, dErrors.CodeUnavailable))

		record, err := s.store.Get(ctx, "ws", "sess-4")
		s.NoError(err)
		s.Nil(record)
	})
}

func (s *VerificationSuite) TestVerify() {
	ctx := context.Background()

	s.Run("no challenge means not started", func() {
		_, err := s.service.Verify(ctx, "ws", "sess-none", "subj-1", "123456")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("correct code verifies and links the contact subject", func() {
		s.request("sess-1")
		state, err := s.service.Verify(ctx, "ws", "sess-1", "subj-1", s.sender.lastCode)
		s.NoError(err)
		s.Equal(vmodels.LevelVerified, state.Level)
		s.Equal(s.clock.Add(VerifiedTTL), state.VerifiedUntil)

		record, err := s.store.Get(ctx, "ws", "sess-1")
		s.NoError(err)
		s.Empty(record.CodeHash)
		s.Zero(record.AttemptCount)

		s.Require().Len(s.linker.linked, 1)
		s.Equal("subj-1", s.linker.linked[0][0])
		s.Equal("hash:+14155551234", s.linker.linked[0][1])
	})

	s.Run("another subject cannot redeem the session's code", func() {
		s.request("sess-other")
		code := s.sender.lastCode

		state, err := s.service.Verify(ctx, "ws", "sess-other", "subj-2", code)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
		s.Equal(vmodels.LevelNone, state.Level)

		// The challenge survives for its own subject.
		state, err = s.service.Verify(ctx, "ws", "sess-other", "subj-1", code)
		s.NoError(err)
		s.Equal(vmodels.LevelVerified, state.Level)
	})

	s.Run("wrong code counts an attempt", func() {
		s.request("sess-2")
		state, err := s.service.Verify(ctx, "ws", "sess-2", "subj-1", "000000")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
		s.Equal(vmodels.LevelPending, state.Level)

		record, _ := s.store.Get(ctx, "ws", "sess-2")
		s.Equal(1, record.AttemptCount)
	})

	s.Run("fifth wrong attempt locks the session", func() {
		s.request("sess-3")
		for i := 0; i < MaxAttempts-1; i++ {
			_, err := s.service.Verify(ctx, "ws", "sess-3", "subj-1", "000000")
			s.True(dErrors.Is(err, dErrors.CodeBadRequest))
		}
		state, err := s.service.Verify(ctx, "ws", "sess-3", "subj-1", "000000")
		s.True(dErrors.Is(err, dErrors.CodeLocked))
		s.Equal(vmodels.LevelLocked, state.Level)
	})

	s.Run("locked sessions reject even the correct code", func() {
		s.request("sess-4")
		code := s.sender.lastCode
		for i := 0; i < MaxAttempts; i++ {
			_, _ = s.service.Verify(ctx, "ws", "sess-4", "subj-1", "000000")
		}
		_, err := s.service.Verify(ctx, "ws", "sess-4", "subj-1", code)
		s.True(dErrors.Is(err, dErrors.CodeLocked))
	})

	s.Run("expired codes flip the persisted level", func() {
		s.request("sess-5")
		code := s.sender.lastCode
		s.advance(CodeTTL + time.Minute)

		state, err := s.service.Verify(ctx, "ws", "sess-5", "subj-1", code)
		s.True(dErrors.Is(err, dErrors.CodeExpired))
		s.Equal(vmodels.LevelExpired, state.Level)

		record, _ := s.store.Get(ctx, "ws", "sess-5")
		s.Equal(vmodels.LevelExpired, record.Level)
		s.Empty(record.CodeHash)
	})

	s.Run("a fresh challenge resets the attempt counter", func() {
		s.request("sess-6")
		_, _ = s.service.Verify(ctx, "ws", "sess-6", "subj-1", "000000")
		_, _ = s.service.Verify(ctx, "ws", "sess-6", "subj-1", "000000")

		s.request("sess-6")
		record, _ := s.store.Get(ctx, "ws", "sess-6")
		s.Zero(record.AttemptCount)
		s.Equal(vmodels.LevelPending, record.Level)
	})
}

func (s *VerificationSuite) TestState() {
	ctx := context.Background()

	s.Run("unknown session is none", func() {
		state := s.service.State(ctx, "ws", "sess-x", "subj-1")
		s.Equal(vmodels.LevelNone, state.Level)
	})

	s.Run("verified until the window passes, expired after", func() {
		s.request("sess-1")
		_, err := s.service.Verify(ctx, "ws", "sess-1", "subj-1", s.sender.lastCode)
		s.Require().NoError(err)

		state := s.service.State(ctx, "ws", "sess-1", "subj-1")
		s.Equal(vmodels.LevelVerified, state.Level)

		s.advance(VerifiedTTL + time.Minute)
		// The cached state is stale; invalidate as a write would.
		s.service.states.Invalidate("ws", "sess-1")

		state = s.service.State(ctx, "ws", "sess-1", "subj-1")
		s.Equal(vmodels.LevelExpired, state.Level)

		record, _ := s.store.Get(ctx, "ws", "sess-1")
		s.Equal(vmodels.LevelExpired, record.Level)
	})

	s.Run("another subject reads none", func() {
		s.request("sess-2")
		_, err := s.service.Verify(ctx, "ws", "sess-2", "subj-1", s.sender.lastCode)
		s.Require().NoError(err)

		state := s.service.State(ctx, "ws", "sess-2", "someone-else")
		s.Equal(vmodels.LevelNone, state.Level)
	})

	s.Run("cached state respects the subject it was computed for", func() {
		s.request("sess-3")
		_, err := s.service.Verify(ctx, "ws", "sess-3", "subj-1", s.sender.lastCode)
		s.Require().NoError(err)

		s.Equal(vmodels.LevelVerified, s.service.State(ctx, "ws", "sess-3", "subj-1").Level)
		// Cache now holds subj-1's state; a different subject must not see it.
		s.Equal(vmodels.LevelNone, s.service.State(ctx, "ws", "sess-3", "subj-2").Level)
	})
}
