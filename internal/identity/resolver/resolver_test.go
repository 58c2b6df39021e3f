package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recall/internal/activity"
	"recall/internal/identity/models"
	"recall/internal/identity/store/links"
	"recall/internal/identity/store/sessions"
	"recall/internal/schema"
)

type recordingRewriter struct {
	migrations [][2]string
}

func (r *recordingRewriter) RewriteSubject(_ context.Context, _, oldID, newID string) error {
	r.migrations = append(r.migrations, [2]string{oldID, newID})
	return nil
}

type recordingPublisher struct {
	events []activity.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event activity.Event) {
	p.events = append(p.events, event)
}

type ResolverSuite struct {
	suite.Suite
	links     *links.InMemoryStore
	sessions  *sessions.InMemoryStore
	rewriter  *recordingRewriter
	publisher *recordingPublisher
	evicted   []string
	resolver  *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.links = links.NewInMemoryStore()
	s.sessions = sessions.NewInMemoryStore()
	s.rewriter = &recordingRewriter{}
	s.publisher = &recordingPublisher{}
	s.evicted = nil

	var err error
	s.resolver, err = New(
		s.links,
		s.sessions,
		schema.NewProbe("subject_links", nil, nil),
		"pepper",
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRewriters(s.rewriter),
		WithActivity(s.publisher),
		WithInvalidator(func(_ context.Context, _, subjectID string) {
			s.evicted = append(s.evicted, subjectID)
		}),
	)
	s.Require().NoError(err)
}

func (s *ResolverSuite) TestNew() {
	s.Run("nil link store returns error", func() {
		_, err := New(nil, s.sessions, schema.NewProbe("x", nil, nil), "", slog.New(slog.NewTextHandler(io.Discard, nil)))
		s.Error(err)
	})

	s.Run("nil session store returns error", func() {
		_, err := New(s.links, nil, schema.NewProbe("x", nil, nil), "", slog.New(slog.NewTextHandler(io.Discard, nil)))
		s.Error(err)
	})
}

func (s *ResolverSuite) TestPhoneSubject() {
	s.Run("derives stable hash subject", func() {
		a := s.resolver.PhoneSubject("+14155551234")
		b := s.resolver.PhoneSubject("(415) 555-1234")
		s.Equal(a, b)
		s.True(len(a) > len("hash:"))
		s.Contains(a, "hash:")
	})

	s.Run("placeholder yields empty", func() {
		s.Empty(s.resolver.PhoneSubject("+10000000000"))
	})

	s.Run("invalid yields empty", func() {
		s.Empty(s.resolver.PhoneSubject("not a phone"))
	})

	s.Run("salt changes the subject", func() {
		other, err := New(s.links, s.sessions, schema.NewProbe("x", nil, nil), "different", slog.New(slog.NewTextHandler(io.Discard, nil)))
		s.Require().NoError(err)
		s.NotEqual(s.resolver.PhoneSubject("+14155551234"), other.PhoneSubject("+14155551234"))
	})
}

func (s *ResolverSuite) TestPickPrimary() {
	s.Run("email beats phone hash", func() {
		s.Equal("a@b.com", PickPrimary("a@b.com", "hash:abc"))
		s.Equal("a@b.com", PickPrimary("hash:abc", "a@b.com"))
	})

	s.Run("phone hash beats visitor", func() {
		s.Equal("hash:abc", PickPrimary("hash:abc", "v-123"))
	})

	s.Run("anything beats empty", func() {
		s.Equal("v-123", PickPrimary("v-123", ""))
	})

	s.Run("tie breaks lexicographically and symmetrically", func() {
		s.Equal("v-aaa", PickPrimary("v-aaa", "v-bbb"))
		s.Equal("v-aaa", PickPrimary("v-bbb", "v-aaa"))
	})
}

func (s *ResolverSuite) TestCanonical() {
	ctx := context.Background()

	s.Run("identity without edges", func() {
		s.Equal("v-1", s.resolver.Canonical(ctx, "ws", "v-1"))
	})

	s.Run("follows chains", func() {
		now := time.Now()
		s.Require().NoError(s.links.Upsert(ctx, "ws", "b", "a", now))
		s.Require().NoError(s.links.Upsert(ctx, "ws", "c", "b", now))
		s.Equal("c", s.resolver.Canonical(ctx, "ws", "a"))
	})

	s.Run("terminates on cycles", func() {
		now := time.Now()
		s.Require().NoError(s.links.Upsert(ctx, "ws", "y", "x", now))
		s.Require().NoError(s.links.Upsert(ctx, "ws", "z", "y", now))
		s.Require().NoError(s.links.Upsert(ctx, "ws", "x", "z", now))

		got := s.resolver.Canonical(ctx, "ws", "x")
		s.Contains([]string{"x", "y", "z"}, got)
		// Canonicalization is idempotent even with a cycle present.
		s.Equal(got, s.resolver.Canonical(ctx, "ws", got))
	})

	s.Run("terminates on random cyclic graphs", func() {
		rng := rand.New(rand.NewSource(1))
		now := time.Now()

		const nodes = 16
		graph := make([]string, nodes)
		for i := range graph {
			graph[i] = fmt.Sprintf("n-%d", i)
		}
		// Every node points at a random other node, so cycles of
		// arbitrary length are all but guaranteed.
		for i, alias := range graph {
			primary := graph[(i+1+rng.Intn(nodes-1))%nodes]
			s.Require().NoError(s.links.Upsert(ctx, "ws", primary, alias, now))
		}

		for _, node := range graph {
			got := s.resolver.Canonical(ctx, "ws", node)
			s.Contains(graph, got)
			s.Equal(got, s.resolver.Canonical(ctx, "ws", got))
		}
	})

	s.Run("unsupported capability degrades to identity", func() {
		probe := schema.NewProbe("subject_links", nil, nil)
		probe.MarkUnsupported()
		degraded, err := New(s.links, s.sessions, probe, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
		s.Require().NoError(err)

		now := time.Now()
		s.Require().NoError(s.links.Upsert(ctx, "ws", "primary", "alias", now))
		s.Equal("alias", degraded.Canonical(ctx, "ws", "alias"))
	})
}

func (s *ResolverSuite) TestResolve() {
	ctx := context.Background()

	s.Run("no identifiers yields empty", func() {
		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{})
		s.NoError(err)
		s.Empty(subject)
	})

	s.Run("explicit subject wins over everything", func() {
		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{
			SubjectID: "explicit",
			VisitorID: "v-1",
			Email:     "a@b.com",
			Phone:     "+14155551234",
		})
		s.NoError(err)
		s.Equal("explicit", subject)
	})

	s.Run("visitor wins over email and anchors the session", func() {
		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{
			VisitorID: "v-1",
			Email:     "a@b.com",
			SessionID: "sess-1",
		})
		s.NoError(err)
		s.Equal("v-1", subject)

		anchored, err := s.sessions.Get(ctx, "ws", "sess-1")
		s.NoError(err)
		s.Require().NotNil(anchored)
		s.Equal("v-1", anchored.SubjectID)
	})

	s.Run("email normalizes and anchors", func() {
		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{
			Email:     " Dana@Example.COM ",
			SessionID: "sess-2",
		})
		s.NoError(err)
		s.Equal("dana@example.com", subject)
	})

	s.Run("session anchor resolves later requests", func() {
		_, err := s.resolver.Resolve(ctx, "ws", models.Hint{VisitorID: "v-2", SessionID: "sess-3"})
		s.Require().NoError(err)

		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{SessionID: "sess-3"})
		s.NoError(err)
		s.Equal("v-2", subject)
	})

	s.Run("anchor does not overwrite an established subject", func() {
		_, err := s.resolver.Resolve(ctx, "ws", models.Hint{VisitorID: "v-first", SessionID: "sess-4"})
		s.Require().NoError(err)
		_, err = s.resolver.Resolve(ctx, "ws", models.Hint{VisitorID: "v-second", SessionID: "sess-4"})
		s.Require().NoError(err)

		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{SessionID: "sess-4"})
		s.NoError(err)
		s.Equal("v-first", subject)
	})

	s.Run("phone resolves last", func() {
		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{Phone: "+14155551234"})
		s.NoError(err)
		s.Equal(s.resolver.PhoneSubject("+14155551234"), subject)
	})

	s.Run("placeholder phone resolves to nothing", func() {
		subject, err := s.resolver.Resolve(ctx, "ws", models.Hint{Phone: "+10000000000"})
		s.NoError(err)
		s.Empty(subject)
	})
}

func (s *ResolverSuite) TestLink() {
	ctx := context.Background()

	s.Run("email wins, history migrates, caches evict", func() {
		primary, linked, err := s.resolver.Link(ctx, "ws", "v-visitor", "dana@example.com")
		s.NoError(err)
		s.True(linked)
		s.Equal("dana@example.com", primary)

		s.Equal([][2]string{{"v-visitor", "dana@example.com"}}, s.rewriter.migrations)
		s.ElementsMatch([]string{"v-visitor", "dana@example.com"}, s.evicted)

		s.Equal("dana@example.com", s.resolver.Canonical(ctx, "ws", "v-visitor"))
	})

	s.Run("merge publishes an activity event", func() {
		s.Require().Len(s.publisher.events, 1)
		event := s.publisher.events[0]
		s.Equal(activity.TypeSubjectsLinked, event.Type)
		s.Equal("ws", event.WorkspaceID)
		s.Equal("dana@example.com", event.SubjectID)
		s.Equal("v-visitor", event.Data["alias"])
	})

	s.Run("same canonical subject is a no-op", func() {
		_, linked, err := s.resolver.Link(ctx, "ws", "v-visitor", "dana@example.com")
		s.NoError(err)
		s.False(linked)

		s.Len(s.publisher.events, 1)
	})

	s.Run("resolution stays stable after repeated links", func() {
		_, _, err := s.resolver.Link(ctx, "ws", "hash:deadbeef", "dana@example.com")
		s.Require().NoError(err)

		s.Equal("dana@example.com", s.resolver.Canonical(ctx, "ws", "hash:deadbeef"))
		s.Equal("dana@example.com", s.resolver.Canonical(ctx, "ws", "v-visitor"))
	})
}
