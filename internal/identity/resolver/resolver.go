// Package resolver turns whatever identifiers a request carries into one
// canonical subject id, and maintains the alias graph that merges
// identities discovered to be the same person.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recall/internal/activity"
	"recall/internal/identity/models"
	"recall/internal/identity/store/links"
	"recall/internal/identity/store/sessions"
	"recall/internal/schema"
	emailpkg "recall/pkg/email"
	phonepkg "recall/pkg/phone"
)

// SubjectRewriter migrates history rows from one subject id to another.
// The memories, calls, and verification stores implement it.
type SubjectRewriter interface {
	RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error
}

// Invalidator evicts every cache tier for a subject after a merge.
type Invalidator func(ctx context.Context, workspaceID, subjectID string)

// Resolver resolves hints to canonical subject ids.
type Resolver struct {
	links      links.Store
	sessions   sessions.Store
	capability *schema.Probe
	salt       string
	logger     *slog.Logger

	rewriters  []SubjectRewriter
	invalidate Invalidator
	activity   activity.Publisher
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRewriters registers the stores whose rows move when subjects merge.
func WithRewriters(rewriters ...SubjectRewriter) Option {
	return func(r *Resolver) { r.rewriters = append(r.rewriters, rewriters...) }
}

// WithInvalidator registers the cache eviction hook.
func WithInvalidator(fn Invalidator) Option {
	return func(r *Resolver) { r.invalidate = fn }
}

// WithActivity attaches the activity event publisher.
func WithActivity(p activity.Publisher) Option {
	return func(r *Resolver) { r.activity = p }
}

// New creates a Resolver. salt hardens phone-derived ids and may be empty.
func New(linkStore links.Store, sessionStore sessions.Store, capability *schema.Probe, salt string, logger *slog.Logger, opts ...Option) (*Resolver, error) {
	if linkStore == nil {
		return nil, errors.New("link store is required")
	}
	if sessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if capability == nil {
		return nil, errors.New("capability probe is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	r := &Resolver{
		links:      linkStore,
		sessions:   sessionStore,
		capability: capability,
		salt:       salt,
		logger:     logger,
		activity:   activity.Noop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// PhoneSubject derives the stable subject id for a phone number:
// "hash:" + sha256(salt|e164). Unnormalizable numbers (including the
// withheld-caller placeholder) yield "".
func (r *Resolver) PhoneSubject(raw string) string {
	e164 := phonepkg.Normalize(raw)
	if e164 == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(r.salt + "|" + e164))
	return "hash:" + hex.EncodeToString(sum[:])
}

// Canonical follows alias edges to the canonical subject id. Cycles
// terminate via a visited set. A missing alias table pins the capability
// off and resolution degrades to identity; transient store errors also
// degrade rather than failing the read path.
func (r *Resolver) Canonical(ctx context.Context, workspaceID, subjectID string) string {
	if subjectID == "" {
		return ""
	}
	if !r.capability.Supported(ctx) {
		return subjectID
	}

	visited := map[string]bool{subjectID: true}
	path := []string{subjectID}
	current := subjectID
	for {
		primary, found, err := r.links.Primary(ctx, workspaceID, current)
		if err != nil {
			if schema.IsUndefinedTable(err) {
				r.capability.MarkUnsupported()
				r.logger.WarnContext(ctx, "subject_links table missing, alias resolution disabled")
				return subjectID
			}
			r.logger.WarnContext(ctx, "alias lookup failed, using unresolved id",
				"subject_id", current,
				"error", err.Error(),
			)
			return current
		}
		if !found || primary == current {
			return current
		}
		if visited[primary] {
			return cycleRepresentative(path, primary)
		}
		visited[primary] = true
		path = append(path, primary)
		current = primary
	}
}

// cycleRepresentative picks one stable id out of a closed alias cycle, so
// every entry point canonicalizes to the same subject. Cycles only arise
// from corrupt link data; the fold reuses the merge preference order.
func cycleRepresentative(path []string, closing string) string {
	start := 0
	for i, id := range path {
		if id == closing {
			start = i
			break
		}
	}
	rep := path[start]
	for _, id := range path[start+1:] {
		rep = PickPrimary(rep, id)
	}
	return rep
}

// Resolve maps a hint to a canonical subject id, or "" when the hint
// carries nothing usable. Visitor and email hints anchor the session so
// later requests on the same session resolve without them.
func (r *Resolver) Resolve(ctx context.Context, workspaceID string, hint models.Hint) (string, error) {
	if hint.SubjectID != "" {
		return r.Canonical(ctx, workspaceID, hint.SubjectID), nil
	}

	if hint.VisitorID != "" {
		subject := r.Canonical(ctx, workspaceID, hint.VisitorID)
		r.anchorSession(ctx, workspaceID, hint.SessionID, subject)
		return subject, nil
	}

	if normalized := emailpkg.Normalize(hint.Email); normalized != "" {
		subject := r.Canonical(ctx, workspaceID, normalized)
		r.anchorSession(ctx, workspaceID, hint.SessionID, subject)
		return subject, nil
	}

	if hint.SessionID != "" {
		identity, err := r.sessions.Get(ctx, workspaceID, hint.SessionID)
		if err != nil {
			return "", fmt.Errorf("resolve session anchor: %w", err)
		}
		if identity != nil {
			if identity.SubjectID != "" {
				return r.Canonical(ctx, workspaceID, identity.SubjectID), nil
			}
			if subject := r.PhoneSubject(identity.Phone); subject != "" {
				return r.Canonical(ctx, workspaceID, subject), nil
			}
			if normalized := emailpkg.Normalize(identity.Email); normalized != "" {
				return r.Canonical(ctx, workspaceID, normalized), nil
			}
		}
	}

	if subject := r.PhoneSubject(hint.Phone); subject != "" {
		subject = r.Canonical(ctx, workspaceID, subject)
		r.anchorSession(ctx, workspaceID, hint.SessionID, subject)
		return subject, nil
	}

	return "", nil
}

func (r *Resolver) anchorSession(ctx context.Context, workspaceID, sessionID, subjectID string) {
	if sessionID == "" || subjectID == "" {
		return
	}
	if err := r.sessions.Seed(ctx, workspaceID, sessionID, subjectID); err != nil {
		r.logger.WarnContext(ctx, "session anchor seed failed",
			"session_id", sessionID,
			"error", err.Error(),
		)
	}
}

// Link merges two subject ids: the loser becomes an alias of the winner,
// history rows migrate, and every cache tier for both ids is evicted.
// Returns the winning id and whether an edge was actually written.
func (r *Resolver) Link(ctx context.Context, workspaceID, a, b string) (string, bool, error) {
	ca := r.Canonical(ctx, workspaceID, a)
	cb := r.Canonical(ctx, workspaceID, b)

	if ca == "" {
		return cb, false, nil
	}
	if cb == "" || ca == cb {
		return ca, false, nil
	}
	if !r.capability.Supported(ctx) {
		return PickPrimary(ca, cb), false, nil
	}

	primary := PickPrimary(ca, cb)
	alias := ca
	if alias == primary {
		alias = cb
	}

	if err := r.links.Upsert(ctx, workspaceID, primary, alias, time.Now()); err != nil {
		if schema.IsUndefinedTable(err) {
			r.capability.MarkUnsupported()
			r.logger.WarnContext(ctx, "subject_links table missing, alias resolution disabled")
			return primary, false, nil
		}
		return "", false, fmt.Errorf("link subjects: %w", err)
	}

	for _, rewriter := range r.rewriters {
		if err := rewriter.RewriteSubject(ctx, workspaceID, alias, primary); err != nil {
			r.logger.WarnContext(ctx, "subject history migration failed",
				"alias", alias,
				"primary", primary,
				"error", err.Error(),
			)
		}
	}

	if r.invalidate != nil {
		r.invalidate(ctx, workspaceID, alias)
		r.invalidate(ctx, workspaceID, primary)
	}

	r.activity.Publish(ctx, activity.Event{
		Type:        activity.TypeSubjectsLinked,
		WorkspaceID: workspaceID,
		SubjectID:   primary,
		Data:        map[string]any{"alias": alias},
	})

	r.logger.InfoContext(ctx, "subjects linked",
		"primary", primary,
		"alias", alias,
	)
	return primary, true, nil
}

// PickPrimary chooses which of two subject ids survives a merge. Emails
// beat phone hashes, phone hashes beat everything anonymous, visitor ids
// lose to all of those. Ties break lexicographically so the choice is
// stable regardless of argument order.
func PickPrimary(a, b string) string {
	sa, sb := subjectScore(a), subjectScore(b)
	if sa != sb {
		if sa < sb {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func subjectScore(id string) int {
	switch {
	case id == "":
		return 99
	case strings.Contains(id, "@"):
		return 0
	case strings.HasPrefix(id, "hash:"):
		return 1
	case strings.HasPrefix(id, "v-"):
		return 10
	default:
		return 5
	}
}
