// Package service implements the verification state machine: challenge
// issuance, code verification with attempt lockout, and lazy expiry.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"recall/internal/cache"
	identitymodels "recall/internal/identity/models"
	"recall/internal/platform/metrics"
	"recall/internal/verification/models"
	"recall/internal/verification/store"
	dErrors "recall/pkg/domainerrors"
	emailpkg "recall/pkg/email"
	phonepkg "recall/pkg/phone"
)

const (
	// CodeTTL bounds how long an issued code is accepted.
	CodeTTL = 10 * time.Minute
	// VerifiedTTL bounds how long a successful verification discloses.
	VerifiedTTL = 15 * time.Minute
	// MaxAttempts locks the session once reached.
	MaxAttempts = 5

	codeDigits = 6
)

// IdentitySource supplies the session's stored contact details when the
// caller does not pass one explicitly.
type IdentitySource interface {
	Get(ctx context.Context, workspaceID, sessionID string) (*identitymodels.SessionIdentity, error)
}

// Linker merges the verified contact's subject into the session subject.
type Linker interface {
	Link(ctx context.Context, workspaceID, a, b string) (string, bool, error)
	PhoneSubject(raw string) string
}

// cachedState pairs a state with the subject it was computed for, so a
// session that switches subjects never reads another subject's standing.
type cachedState struct {
	SubjectID string
	State     models.State
}

// Service is the verification state machine.
type Service struct {
	store      store.Store
	sender     Sender
	identities IdentitySource
	linker     Linker
	states     *cache.SessionCache[cachedState]
	secret     string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLinker enables contact-subject linking on successful verification.
func WithLinker(linker Linker) Option {
	return func(s *Service) { s.linker = linker }
}

// WithMetrics attaches verification counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the verification service. secret keys the code hashes.
func New(st store.Store, sender Sender, identities IdentitySource, states *cache.SessionCache[cachedState], secret string, logger *slog.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("verification store is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if states == nil {
		return nil, errors.New("state cache is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Service{
		store:      st,
		sender:     sender,
		identities: identities,
		states:     states,
		secret:     secret,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewStateCache builds the session-tier cache for verification states.
func NewStateCache(ttl time.Duration) *cache.SessionCache[cachedState] {
	return cache.NewSessionCache[cachedState](ttl)
}

// Request issues a new challenge for the session, replacing any
// outstanding one and resetting the attempt counter.
func (s *Service) Request(ctx context.Context, workspaceID, sessionID, subjectID, channel, contact string) (*models.Challenge, error) {
	if sessionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session_id is required")
	}
	if channel == "" {
		channel = "sms"
	}
	if channel != "sms" && channel != "email" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "channel must be sms or email")
	}

	contact, err := s.resolveContact(ctx, workspaceID, sessionID, channel, contact)
	if err != nil {
		return nil, err
	}
	if subjectID == "" {
		subjectID = s.contactSubject(channel, contact)
	}

	code, err := generateCode()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "code generation failed")
	}

	if err := s.sender.Send(ctx, workspaceID, channel, contact, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "code delivery failed")
	}

	now := s.now()
	record := &models.Record{
		WorkspaceID: workspaceID,
		SessionID:   sessionID,
		SubjectID:   subjectID,
		Channel:     channel,
		Contact:     contact,
		CodeHash:    s.hashCode(code),
		ExpiresAt:   now.Add(CodeTTL),
		Level:       models.LevelPending,
	}
	if err := s.store.Put(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "challenge persist failed")
	}

	s.states.Invalidate(workspaceID, sessionID)
	s.metrics.OTPRequested()
	s.logger.InfoContext(ctx, "verification challenge issued",
		"session_id", sessionID,
		"channel", channel,
	)
	return &models.Challenge{Channel: channel, Contact: contact, ExpiresAt: record.ExpiresAt}, nil
}

// Verify checks a submitted code. Ordering is fixed: no challenge, then
// lockout, then expiry, then the hash comparison. Locked sessions are
// rejected before the code is even hashed. A challenge held by a
// different subject reads as no challenge.
func (s *Service) Verify(ctx context.Context, workspaceID, sessionID, subjectID, code string) (models.State, error) {
	none := models.State{Level: models.LevelNone}
	if sessionID == "" || code == "" {
		return none, dErrors.New(dErrors.CodeBadRequest, "session_id and code are required")
	}

	record, err := s.store.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return none, dErrors.Wrap(err, dErrors.CodeInternal, "verification lookup failed")
	}
	if record == nil {
		s.metrics.OTPOutcome("not_started")
		return none, dErrors.New(dErrors.CodeBadRequest, "verification not started")
	}
	if subjectID != "" && record.SubjectID != "" && record.SubjectID != subjectID {
		s.metrics.OTPOutcome("not_started")
		return none, dErrors.New(dErrors.CodeBadRequest, "verification not started")
	}

	now := s.now()

	if record.Level == models.LevelLocked || record.AttemptCount >= MaxAttempts {
		s.metrics.OTPOutcome("locked")
		return models.State{Level: models.LevelLocked}, dErrors.New(dErrors.CodeLocked, "too many attempts")
	}

	if record.CodeHash == "" {
		s.metrics.OTPOutcome("not_started")
		return models.State{Level: record.Level, VerifiedUntil: record.VerifiedUntil},
			dErrors.New(dErrors.CodeBadRequest, "verification not started")
	}

	if now.After(record.ExpiresAt) {
		if err := s.store.SetLevel(ctx, workspaceID, sessionID, models.LevelExpired, true); err != nil {
			s.logger.WarnContext(ctx, "expiry flip failed", "session_id", sessionID, "error", err.Error())
		}
		s.states.Invalidate(workspaceID, sessionID)
		s.metrics.OTPOutcome("expired")
		return models.State{Level: models.LevelExpired}, dErrors.New(dErrors.CodeExpired, "code expired")
	}

	if subtle.ConstantTimeCompare([]byte(s.hashCode(code)), []byte(record.CodeHash)) != 1 {
		attempts := record.AttemptCount + 1
		level := models.LevelPending
		if attempts >= MaxAttempts {
			level = models.LevelLocked
		}
		if err := s.store.RecordAttempt(ctx, workspaceID, sessionID, attempts, level); err != nil {
			s.logger.WarnContext(ctx, "attempt record failed", "session_id", sessionID, "error", err.Error())
		}
		s.states.Invalidate(workspaceID, sessionID)

		if level == models.LevelLocked {
			s.metrics.OTPOutcome("locked")
			return models.State{Level: models.LevelLocked}, dErrors.New(dErrors.CodeLocked, "too many attempts")
		}
		s.metrics.OTPOutcome("invalid")
		return models.State{Level: models.LevelPending}, dErrors.New(dErrors.CodeBadRequest, "invalid code")
	}

	until := now.Add(VerifiedTTL)
	if err := s.store.MarkVerified(ctx, workspaceID, sessionID, now, until); err != nil {
		return none, dErrors.Wrap(err, dErrors.CodeInternal, "verification persist failed")
	}
	s.states.Invalidate(workspaceID, sessionID)
	s.metrics.OTPOutcome("verified")

	s.linkContact(ctx, workspaceID, record)

	s.logger.InfoContext(ctx, "session verified",
		"session_id", sessionID,
		"subject_id", record.SubjectID,
	)
	return models.State{Level: models.LevelVerified, VerifiedUntil: until}, nil
}

// State returns the session's standing for the given subject. It never
// errors: failures and foreign-subject rows read as none. Expired windows
// are flipped in the store on read.
func (s *Service) State(ctx context.Context, workspaceID, sessionID, subjectID string) models.State {
	none := models.State{Level: models.LevelNone}
	if sessionID == "" {
		return none
	}

	if cached, ok := s.states.Get(workspaceID, sessionID); ok {
		if cached.SubjectID != subjectID {
			return none
		}
		return cached.State
	}

	record, err := s.store.Get(ctx, workspaceID, sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "verification state lookup failed",
			"session_id", sessionID,
			"error", err.Error(),
		)
		return none
	}
	if record == nil {
		return none
	}
	if subjectID != "" && record.SubjectID != "" && record.SubjectID != subjectID {
		return none
	}

	now := s.now()
	state := models.State{Level: record.Level, VerifiedUntil: record.VerifiedUntil}

	switch record.Level {
	case models.LevelVerified:
		if !record.VerifiedUntil.IsZero() && now.After(record.VerifiedUntil) {
			if err := s.store.SetLevel(ctx, workspaceID, sessionID, models.LevelExpired, true); err != nil {
				s.logger.WarnContext(ctx, "expiry flip failed", "session_id", sessionID, "error", err.Error())
			}
			state = models.State{Level: models.LevelExpired}
		}
	case models.LevelPending:
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			if err := s.store.SetLevel(ctx, workspaceID, sessionID, models.LevelExpired, true); err != nil {
				s.logger.WarnContext(ctx, "expiry flip failed", "session_id", sessionID, "error", err.Error())
			}
			state = models.State{Level: models.LevelExpired}
		}
	}

	s.states.Put(workspaceID, sessionID, cachedState{SubjectID: subjectID, State: state})
	return state
}

// resolveContact uses the explicit contact or falls back to the session's
// stored identity, then validates for the channel.
func (s *Service) resolveContact(ctx context.Context, workspaceID, sessionID, channel, contact string) (string, error) {
	if contact == "" && s.identities != nil {
		identity, err := s.identities.Get(ctx, workspaceID, sessionID)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "session identity lookup failed")
		}
		if identity != nil {
			if channel == "email" {
				contact = identity.Email
			} else {
				contact = identity.Phone
			}
		}
	}
	if contact == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "no contact on file for session")
	}

	if channel == "email" {
		normalized := emailpkg.Normalize(contact)
		if normalized == "" {
			return "", dErrors.New(dErrors.CodeBadRequest, "invalid email address")
		}
		return normalized, nil
	}
	normalized := phonepkg.Normalize(contact)
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid phone number")
	}
	return normalized, nil
}

func (s *Service) contactSubject(channel, contact string) string {
	if channel == "email" {
		return emailpkg.Normalize(contact)
	}
	if s.linker != nil {
		return s.linker.PhoneSubject(contact)
	}
	return ""
}

// linkContact merges the verified contact's subject into the session
// subject, best-effort.
func (s *Service) linkContact(ctx context.Context, workspaceID string, record *models.Record) {
	if s.linker == nil || record.SubjectID == "" {
		return
	}
	contactSubject := s.contactSubject(record.Channel, record.Contact)
	if contactSubject == "" || contactSubject == record.SubjectID {
		return
	}
	if _, _, err := s.linker.Link(ctx, workspaceID, record.SubjectID, contactSubject); err != nil {
		s.logger.WarnContext(ctx, "contact link failed",
			"subject_id", record.SubjectID,
			"error", err.Error(),
		)
	}
}

func (s *Service) hashCode(code string) string {
	sum := sha256.Sum256([]byte(code + "|" + s.secret))
	return hex.EncodeToString(sum[:])
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
