// Package recognition runs one attendance recognition end to end: embed the
// probe, match it against the gallery, resolve the account and record the
// ledger transition.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision"
)

// Resolver maps a gallery name to an account; nil means no account.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*models.Identity, error)
}

// Recorder applies the daily attendance state machine.
type Recorder interface {
	Record(ctx context.Context, email string, ts time.Time) (*attendance.Mark, error)
	Location() *time.Location
}

// Publisher ships audit events, typically to NATS.
type Publisher interface {
	PublishRecognition(ctx context.Context, e models.RecognitionEvent) error
}

// SnapshotStore keeps probe images of accepted transitions.
type SnapshotStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Result is the outcome of one recognition.
type Result struct {
	Outcome  models.Outcome
	Label    string
	Match    matcher.Result
	Identity *models.Identity // set once the gallery name resolved
	Mark     *attendance.Mark // set when the ledger accepted the identity
	Event    models.RecognitionEvent
}

// Email returns the resolved email for the response, or nil.
func (r *Result) Email() *string {
	if r.Identity == nil {
		return nil
	}
	return &r.Identity.Email
}

type Service struct {
	embedder  vision.FaceEmbedder
	matcher   *matcher.Matcher
	resolver  Resolver
	ledger    Recorder
	snapshots SnapshotStore
	publisher Publisher
	now       func() time.Time
}

type Option func(*Service)

// WithSnapshots stores the probe image of every check-in and check-out.
func WithSnapshots(store SnapshotStore) Option {
	return func(s *Service) { s.snapshots = store }
}

// WithPublisher publishes an audit event for every recognition.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(embedder vision.FaceEmbedder, m *matcher.Matcher, resolver Resolver, ledger Recorder, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		matcher:  m,
		resolver: resolver,
		ledger:   ledger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecognizeBase64 decodes a request payload and recognises it.
func (s *Service) RecognizeBase64(ctx context.Context, payload string) (*Result, error) {
	img, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	return s.Recognize(ctx, img)
}

// Recognize identifies the primary face in img and records attendance for
// it. Non-matches are results, not errors. Errors are either
// vision.ErrInvalidImage or failures of a collaborator.
func (s *Service) Recognize(ctx context.Context, img []byte) (*Result, error) {
	res, err := s.recognize(ctx, img)
	if err != nil {
		observability.Recognitions.WithLabelValues("error").Inc()
		return nil, err
	}
	return res, nil
}

func (s *Service) recognize(ctx context.Context, img []byte) (*Result, error) {
	log := observability.LoggerFrom(ctx)
	ts := s.now()

	probe, err := s.embedder.Embed(ctx, img)
	switch {
	case errors.Is(err, vision.ErrNoFaceFound):
		return s.finish(ctx, img, &Result{Outcome: models.OutcomeNoFace, Label: matcher.LabelNoFace}, ts), nil
	case err != nil:
		return nil, fmt.Errorf("embed probe: %w", err)
	}

	match, err := s.matcher.Match(ctx, probe)
	if err != nil {
		return nil, err
	}
	res := &Result{Match: match, Label: match.Name}
	if !match.Matched {
		res.Outcome = models.OutcomeUnknown
		return s.finish(ctx, img, res, ts), nil
	}

	identity, err := s.resolver.Resolve(ctx, match.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", match.Name, err)
	}
	if identity == nil {
		log.Info("gallery name has no account", "name", match.Name)
		res.Outcome = models.OutcomeUnresolved
		return s.finish(ctx, img, res, ts), nil
	}
	res.Identity = identity

	mark, err := s.ledger.Record(ctx, identity.Email, ts)
	if errors.Is(err, attendance.ErrUnknownIdentity) {
		log.Warn("attendance not marked, account inactive or missing", "name", match.Name, "email", identity.Email)
		res.Outcome = models.OutcomeNotMarked
		return s.finish(ctx, img, res, ts), nil
	}
	if err != nil {
		return nil, fmt.Errorf("record attendance for %s: %w", identity.Email, err)
	}
	res.Outcome = models.OutcomeMatched
	res.Mark = mark
	return s.finish(ctx, img, res, ts), nil
}

// finish builds the audit event, stores the snapshot and publishes. Neither
// side effect can fail the recognition.
func (s *Service) finish(ctx context.Context, img []byte, res *Result, ts time.Time) *Result {
	log := observability.LoggerFrom(ctx)

	e := models.RecognitionEvent{
		ID:         uuid.New(),
		Outcome:    res.Outcome,
		Label:      res.Label,
		Email:      res.Email(),
		Transition: models.TransitionNone,
		Date:       models.DateOf(ts, s.ledger.Location()),
		OccurredAt: ts,
	}
	if res.Match.HasNearest {
		d := res.Match.Distance
		e.Distance = &d
	}
	if res.Match.Matched {
		c := res.Match.Confidence
		e.Confidence = &c
	}
	if res.Mark != nil {
		e.Transition = res.Mark.Transition
		e.Date = res.Mark.Record.Date
		e.CheckIn = res.Mark.Record.CheckIn
		e.CheckOut = res.Mark.Record.CheckOut
	}

	if s.snapshots != nil && e.Transition != models.TransitionNone && e.Email != nil {
		key := SnapshotKey(e.Date, *e.Email, e.Transition)
		if err := s.snapshots.PutObject(ctx, key, img, ""); err != nil {
			log.Warn("store attendance snapshot failed", "key", key, "error", err)
		} else {
			e.SnapshotKey = key
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRecognition(ctx, e); err != nil {
			log.Warn("publish recognition failed", "event_id", e.ID, "error", err)
		}
	}

	observability.Recognitions.WithLabelValues(string(res.Outcome)).Inc()
	log.Info("recognition",
		"outcome", res.Outcome,
		"label", res.Label,
		"transition", e.Transition,
		"distance", res.Match.Distance,
	)
	res.Event = e
	return res
}

// SnapshotKey is attendance/<date>/<email>/<transition>_<uuid>.jpg.
func SnapshotKey(date time.Time, email string, t models.Transition) string {
	return fmt.Sprintf("attendance/%s/%s/%s_%s.jpg", date.Format(models.DateLayout), email, t, uuid.NewString())
}
