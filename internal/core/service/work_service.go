package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

const (
	defaultUploadTimeout   = 2 * time.Minute
	defaultDeliveryLinkTTL = 6 * time.Hour
	defaultDownloadLinkTTL = 10 * time.Minute
	defaultUploadLinkTTL   = time.Hour
	maxDescriptionLength   = 5000
)

// WorkConfig tunes storage timeouts and retrieval link lifetimes.
type WorkConfig struct {
	// UploadTimeout bounds each object storage call.
	UploadTimeout time.Duration
	// DeliveryLinkTTL is the lifetime of the link returned right after delivery.
	DeliveryLinkTTL time.Duration
	// DownloadLinkTTL is the lifetime of links issued on later downloads.
	DownloadLinkTTL time.Duration
	// UploadLinkTTL is the lifetime of presigned upload URLs.
	UploadLinkTTL time.Duration
}

func (c WorkConfig) withDefaults() WorkConfig {
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = defaultUploadTimeout
	}
	if c.DeliveryLinkTTL <= 0 {
		c.DeliveryLinkTTL = defaultDeliveryLinkTTL
	}
	if c.DownloadLinkTTL <= 0 {
		c.DownloadLinkTTL = defaultDownloadLinkTTL
	}
	if c.UploadLinkTTL <= 0 {
		c.UploadLinkTTL = defaultUploadLinkTTL
	}
	return c
}

// WorkService implements the work lifecycle: creation, the three permitted
// transitions, and deliverable retrieval.
type WorkService struct {
	works   ports.WorkRepository
	users   ports.UserRepository
	storage ports.ObjectStorage
	idem    ports.IdempotencyStore
	cfg     WorkConfig
	logger  zerolog.Logger
}

// NewWorkService wires the engine. idem may be nil, which disables Idempotency-Key support.
func NewWorkService(
	works ports.WorkRepository,
	users ports.UserRepository,
	storage ports.ObjectStorage,
	idem ports.IdempotencyStore,
	cfg WorkConfig,
	logger zerolog.Logger,
) *WorkService {
	return &WorkService{
		works:   works,
		users:   users,
		storage: storage,
		idem:    idem,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Create requests a new work from a creator against one of their plans. If an
// idempotency key is provided and already completed, the earlier work is
// returned without side effects.
func (s *WorkService) Create(ctx context.Context, in ports.CreateWorkInput) (*ports.CreateWorkResult, error) {
	if in.RequesterID == "" {
		return nil, domain.ErrUnauthenticated
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, domain.ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLength {
		return nil, domain.NewValidationError("description must be at most %d characters", maxDescriptionLength)
	}

	reserved := false
	if in.IdempotencyKey != "" && s.idem != nil {
		existingID, err := s.idem.Reserve(ctx, in.RequesterID, in.IdempotencyKey)
		switch {
		case errors.Is(err, domain.ErrIdempotencyInFlight):
			return nil, err
		case err != nil:
			s.logger.Warn().Err(err).Str("requester_id", in.RequesterID).Msg("idempotency reserve failed, processing anyway")
		case existingID != "":
			w, err := s.works.FindByID(ctx, existingID)
			if err != nil {
				return nil, fmt.Errorf("create work: idempotent replay: %w", err)
			}
			s.logger.Info().Str("idempotency_key", in.IdempotencyKey).Str("work_id", w.ID).Msg("idempotent replay")
			return &ports.CreateWorkResult{Work: w, AlreadyExisted: true}, nil
		default:
			reserved = true
		}
	}

	w, err := s.create(ctx, in.RequesterID, in.CreatorID, in.PlanID, desc)
	if reserved {
		if err != nil {
			if relErr := s.idem.Release(ctx, in.RequesterID, in.IdempotencyKey); relErr != nil {
				s.logger.Warn().Err(relErr).Msg("failed to release idempotency key")
			}
		} else if cErr := s.idem.Complete(ctx, in.RequesterID, in.IdempotencyKey, w.ID); cErr != nil {
			s.logger.Warn().Err(cErr).Str("work_id", w.ID).Msg("failed to complete idempotency key")
		}
	}
	if err != nil {
		return nil, err
	}
	return &ports.CreateWorkResult{Work: w}, nil
}

func (s *WorkService) create(ctx context.Context, requesterID, creatorID, planID, desc string) (*domain.Work, error) {
	creator, err := s.users.FindByID(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	plan, err := creator.RequestablePlan(planID)
	if err != nil {
		return nil, err
	}
	if creator.ID == requesterID {
		return nil, domain.ErrSelfRequest
	}

	now := time.Now().UTC()
	w := &domain.Work{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		CreatorID:   creator.ID,
		PlanID:      plan.ID,
		Description: desc,
		Amount:      plan.Amount,
		PaymentURL:  plan.PaymentURL,
		Status:      domain.WorkRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	n := domain.NewWorkNotification(uuid.NewString(), w, domain.PartyRequester, domain.NotificationNewRequest, now)

	if err := s.works.Create(ctx, w, n); err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			s.logger.Error().Err(err).Str("creator_id", creatorID).Msg("failed to create work")
		}
		return nil, err
	}

	s.logger.Info().
		Str("work_id", w.ID).
		Int64("number", w.Number).
		Str("requester_id", requesterID).
		Str("creator_id", creator.ID).
		Msg("work requested")
	return w, nil
}

// Get returns a work to either of its parties.
func (s *WorkService) Get(ctx context.Context, workID, actorID string) (*domain.Work, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthenticated
	}
	w, err := s.works.FindByID(ctx, workID)
	if err != nil {
		return nil, err
	}
	if _, ok := w.PartyOf(actorID); !ok {
		return nil, domain.ErrWorkNotFound
	}
	return w, nil
}

// ListReceived returns the works addressed to creatorID.
func (s *WorkService) ListReceived(ctx context.Context, creatorID string) ([]ports.WorkListItem, error) {
	return s.list(ctx, domain.PartyCreator, creatorID)
}

// ListSent returns the works requested by requesterID.
func (s *WorkService) ListSent(ctx context.Context, requesterID string) ([]ports.WorkListItem, error) {
	return s.list(ctx, domain.PartyRequester, requesterID)
}

func (s *WorkService) list(ctx context.Context, party domain.Party, userID string) ([]ports.WorkListItem, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	works, err := s.works.ListByParty(ctx, party, userID)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}

	ids := make([]string, 0, len(works))
	seen := make(map[string]struct{}, len(works))
	for _, w := range works {
		id := w.PartyID(party.Counterpart())
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list works: counterparts: %w", err)
	}

	items := make([]ports.WorkListItem, len(works))
	for i, w := range works {
		item := ports.WorkListItem{Work: w}
		if u, ok := users[w.PartyID(party.Counterpart())]; ok {
			item.Counterpart = u.Summary()
		}
		items[i] = item
	}
	return items, nil
}

// Deliver marks a requested work as delivered with the given storage key.
// Only the creator may deliver.
func (s *WorkService) Deliver(ctx context.Context, workID, actorID, fileRef string) (*domain.Work, error) {
	if strings.TrimSpace(fileRef) == "" {
		return nil, domain.ErrMissingFile
	}
	return s.transition(ctx, workID, actorID, domain.WorkDelivered, fileRef)
}

// Reject closes a requested work without delivery. Only the creator may reject.
func (s *WorkService) Reject(ctx context.Context, workID, actorID string) (*domain.Work, error) {
	return s.transition(ctx, workID, actorID, domain.WorkRejected, "")
}

// ConfirmPayment records that the requester sent the payment for a delivered work.
func (s *WorkService) ConfirmPayment(ctx context.Context, workID, actorID string) (*domain.Work, error) {
	return s.transition(ctx, workID, actorID, domain.WorkPaid, "")
}

// UploadDeliverable stores the file first and then delivers the work. A failed
// upload leaves the work untouched.
func (s *WorkService) UploadDeliverable(ctx context.Context, in ports.UploadDeliverableInput) (*ports.DeliveryResult, error) {
	if in.Body == nil || in.Size <= 0 {
		return nil, domain.ErrMissingFile
	}
	w, err := s.authorize(ctx, in.WorkID, in.ActorID, domain.WorkDelivered)
	if err != nil {
		return nil, err
	}

	key := deliverableKey(w.ID, in.FileName, time.Now().UTC())
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	putCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	err = s.storage.Put(putCtx, key, in.Body, in.Size, contentType)
	cancel()
	if err != nil {
		s.logger.Error().Err(err).Str("work_id", w.ID).Str("key", key).Msg("deliverable upload failed")
		return nil, fmt.Errorf("upload deliverable: %w", err)
	}

	updated, err := s.Deliver(ctx, w.ID, in.ActorID, key)
	if err != nil {
		rmCtx, rmCancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UploadTimeout)
		if rmErr := s.storage.Remove(rmCtx, key); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("key", key).Msg("failed to remove orphaned deliverable")
		}
		rmCancel()
		return nil, err
	}

	return s.deliveryResult(ctx, updated), nil
}

// RequestUploadURL issues a presigned PUT URL for the creator's deliverable.
// The work is left untouched until CompleteUpload.
func (s *WorkService) RequestUploadURL(ctx context.Context, workID, actorID, fileName string) (*ports.UploadTicket, error) {
	w, err := s.authorize(ctx, workID, actorID, domain.WorkDelivered)
	if err != nil {
		return nil, err
	}

	key := deliverableKey(w.ID, fileName, time.Now().UTC())
	signCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	url, err := s.storage.SignPut(signCtx, key, s.cfg.UploadLinkTTL)
	if err != nil {
		return nil, fmt.Errorf("sign upload link: %w", err)
	}
	return &ports.UploadTicket{Key: key, URL: url, ExpiresAt: time.Now().UTC().Add(s.cfg.UploadLinkTTL)}, nil
}

// CompleteUpload delivers the work with a file the creator uploaded through a
// RequestUploadURL ticket. The key must belong to the work and the object
// must already be in storage.
func (s *WorkService) CompleteUpload(ctx context.Context, workID, actorID, key string) (*ports.DeliveryResult, error) {
	w, err := s.authorize(ctx, workID, actorID, domain.WorkDelivered)
	if err != nil {
		return nil, err
	}
	name, ok := strings.CutPrefix(key, deliverablePrefix(w.ID))
	if !ok || name == "" || strings.Contains(name, "/") || path.Clean(key) != key {
		return nil, domain.NewValidationError("file key does not belong to this work")
	}

	statCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	exists, err := s.storage.Exists(statCtx, key)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("check uploaded deliverable: %w", err)
	}
	if !exists {
		return nil, domain.ErrMissingFile
	}

	updated, err := s.Deliver(ctx, w.ID, actorID, key)
	if err != nil {
		return nil, err
	}
	return s.deliveryResult(ctx, updated), nil
}

func (s *WorkService) deliveryResult(ctx context.Context, w *domain.Work) *ports.DeliveryResult {
	result := &ports.DeliveryResult{Work: w}
	link, err := s.sign(ctx, w.FileRef, s.cfg.DeliveryLinkTTL)
	if err != nil {
		// Delivery is committed; the requester can still fetch a link later.
		s.logger.Warn().Err(err).Str("work_id", w.ID).Msg("failed to sign delivery link")
		return result
	}
	result.Link = *link
	return result
}

// GetDeliverable issues a short-lived retrieval link to either party once the
// work has been delivered.
func (s *WorkService) GetDeliverable(ctx context.Context, workID, actorID string) (*ports.DownloadLink, error) {
	w, err := s.Get(ctx, workID, actorID)
	if err != nil {
		return nil, err
	}
	if !w.HasDeliverable() {
		return nil, domain.ErrDeliverableUnavailable
	}
	return s.sign(ctx, w.FileRef, s.cfg.DownloadLinkTTL)
}

func (s *WorkService) sign(ctx context.Context, key string, ttl time.Duration) (*ports.DownloadLink, error) {
	signCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	url, err := s.storage.SignGet(signCtx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("sign deliverable link: %w", err)
	}
	return &ports.DownloadLink{URL: url, ExpiresAt: time.Now().UTC().Add(ttl)}, nil
}

// authorize loads the work and checks that actorID is the party entitled to
// move it into next. A wrong actor is reported as not found; the right actor
// with a wrong status gets ErrInvalidTransition.
func (s *WorkService) authorize(ctx context.Context, workID, actorID string, next domain.WorkStatus) (*domain.Work, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthenticated
	}
	party, ok := domain.ActorFor(next)
	if !ok {
		return nil, fmt.Errorf("%w (to %s)", domain.ErrInvalidTransition, next)
	}
	w, err := s.works.FindByID(ctx, workID)
	if err != nil {
		return nil, err
	}
	if w.PartyID(party) != actorID {
		return nil, domain.ErrWorkNotFound
	}
	if w.Status.Terminal() {
		return nil, fmt.Errorf("%w (work is %s and can no longer change)", domain.ErrInvalidTransition, w.Status)
	}
	if !w.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w (from %s to %s)", domain.ErrInvalidTransition, w.Status, next)
	}
	return w, nil
}

func (s *WorkService) transition(ctx context.Context, workID, actorID string, next domain.WorkStatus, fileRef string) (*domain.Work, error) {
	w, err := s.authorize(ctx, workID, actorID, next)
	if err != nil {
		return nil, err
	}
	party, _ := domain.ActorFor(next)

	now := time.Now().UTC()
	t := ports.WorkTransition{
		WorkID:  w.ID,
		From:    w.Status,
		To:      next,
		Actor:   party,
		ActorID: actorID,
		FileRef: fileRef,
		At:      now,
	}
	after := *w
	after.Apply(next, fileRef, now)
	n := domain.NewWorkNotification(uuid.NewString(), &after, party, domain.NotificationStatusChanged, now)

	updated, err := s.works.Transition(ctx, t, n)
	if err != nil {
		if errors.Is(err, domain.ErrTransitionConflict) {
			s.logger.Warn().Str("work_id", w.ID).Str("from", string(w.Status)).Str("to", string(next)).Msg("transition lost a race")
			return nil, err
		}
		s.logger.Error().Err(err).Str("work_id", w.ID).Str("to", string(next)).Msg("transition failed")
		return nil, fmt.Errorf("%s work: %w", next, err)
	}

	s.logger.Info().
		Str("work_id", updated.ID).
		Str("from", string(w.Status)).
		Str("status", string(updated.Status)).
		Str("actor_id", actorID).
		Msg("work transitioned")
	return updated, nil
}

// deliverableKey returns the object key for an uploaded deliverable in the
// format deliveries/<work id>/<unix nanos>-<file name>.
func deliverableKey(workID, fileName string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	clean := strings.Trim(b.String(), ".")
	if len(clean) > 100 {
		clean = clean[len(clean)-100:]
	}
	if clean == "" {
		clean = "deliverable"
	}
	return fmt.Sprintf("%s%d-%s", deliverablePrefix(workID), at.UnixNano(), clean)
}

func deliverablePrefix(workID string) string {
	return "deliveries/" + workID + "/"
}
