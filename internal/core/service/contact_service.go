package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/phonebook/contacts-api/internal/core/domain"
	"github.com/phonebook/contacts-api/internal/core/ports"
	"github.com/phonebook/contacts-api/internal/pkg/metrics"
)

type ContactService struct {
	repo    ports.ContactRepository
	sink    ports.BlobSink
	cleaner ports.PhotoCleaner     // optional
	idem    ports.IdempotencyStore // optional
	logger  zerolog.Logger
}

// NewContactService wires the contact use cases. cleaner and idem may be nil:
// superseded photos are then kept and Idempotency-Key headers are ignored.
func NewContactService(
	repo ports.ContactRepository,
	sink ports.BlobSink,
	cleaner ports.PhotoCleaner,
	idem ports.IdempotencyStore,
	logger zerolog.Logger,
) *ContactService {
	return &ContactService{
		repo:    repo,
		sink:    sink,
		cleaner: cleaner,
		idem:    idem,
		logger:  logger,
	}
}

// ListContacts returns one page of the owner's contacts with pagination metadata.
func (s *ContactService) ListContacts(ctx context.Context, ownerID string, q domain.ListQuery) (*ports.ContactPage, error) {
	items, total, err := s.repo.List(ctx, ownerID, q)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if items == nil {
		items = []*domain.Contact{}
	}

	totalPages := 0
	if q.PerPage > 0 {
		totalPages = int((total + int64(q.PerPage) - 1) / int64(q.PerPage))
	}

	return &ports.ContactPage{
		Items:           items,
		Page:            q.Page,
		PerPage:         q.PerPage,
		TotalItems:      total,
		TotalPages:      totalPages,
		HasNextPage:     q.Page < totalPages,
		HasPreviousPage: q.Page > 1,
	}, nil
}

func (s *ContactService) GetContact(ctx context.Context, id, ownerID string) (*domain.Contact, error) {
	return s.repo.FindByID(ctx, id, ownerID)
}

// CreateContact validates the payload, stores the optional photo, then
// persists the contact. A photo stored for a contact that could not be
// persisted is queued for removal.
func (s *ContactService) CreateContact(ctx context.Context, ownerID string, in ports.CreateContactInput) (*domain.Contact, error) {
	contactType := domain.DefaultContactType
	if in.ContactType != "" {
		ct, ok := domain.ParseContactType(in.ContactType)
		if !ok {
			return nil, fmt.Errorf("%w: contactType %q is not allowed", domain.ErrValidation, in.ContactType)
		}
		contactType = ct
	}

	now := time.Now().UTC()
	contact := &domain.Contact{
		Name:        in.Name,
		PhoneNumber: in.PhoneNumber,
		Email:       in.Email,
		IsFavourite: in.IsFavourite,
		ContactType: contactType,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := contact.Validate(); err != nil {
		return nil, err
	}

	existing, held, err := s.reserve(ctx, ownerID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if in.Photo != nil {
		url, err := s.storePhoto(ctx, *in.Photo)
		if err != nil {
			s.release(ctx, held, ownerID, in.IdempotencyKey)
			return nil, err
		}
		contact.Photo = url
	}

	if err := s.repo.Create(ctx, contact); err != nil {
		s.release(ctx, held, ownerID, in.IdempotencyKey)
		s.discardPhoto(ownerID, contact.Photo, "create_failed")
		if !errors.Is(err, domain.ErrValidation) {
			s.logger.Error().Err(err).Str("owner_id", ownerID).Msg("failed to create contact")
		}
		return nil, err
	}

	if held {
		if err := s.idem.Remember(ctx, ownerID, in.IdempotencyKey, contact.ID); err != nil {
			s.logger.Warn().Err(err).Str("idempotency_key", in.IdempotencyKey).Msg("failed to remember idempotency key")
		}
	}

	metrics.ContactsCreatedTotal.WithLabelValues(string(contact.ContactType)).Inc()
	s.logger.Info().Str("contact_id", contact.ID).Str("owner_id", ownerID).Msg("contact created")

	return contact, nil
}

// reserve claims the idempotency key for this request. It returns the
// contact an earlier request with the same key created, or
// ErrIdempotencyConflict while that request is still running. held reports
// whether this request now owns the key.
func (s *ContactService) reserve(ctx context.Context, ownerID, key string) (*domain.Contact, bool, error) {
	if key == "" || s.idem == nil {
		return nil, false, nil
	}
	id, reserved, err := s.idem.Reserve(ctx, ownerID, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency reserve failed, creating anyway")
		return nil, false, nil
	}
	if reserved {
		return nil, true, nil
	}
	if id == "" {
		return nil, false, fmt.Errorf("%w: key %q", domain.ErrIdempotencyConflict, key)
	}
	existing, err := s.repo.FindByID(ctx, id, ownerID)
	if err != nil {
		// The first contact is gone (or unreadable); this request takes the key over.
		return nil, true, nil
	}
	s.logger.Info().Str("idempotency_key", key).Str("contact_id", existing.ID).Msg("idempotent replay")
	return existing, false, nil
}

// release gives up a held key after a failed create so a retry can run.
func (s *ContactService) release(ctx context.Context, held bool, ownerID, key string) {
	if !held {
		return
	}
	if err := s.idem.Release(context.WithoutCancel(ctx), ownerID, key); err != nil {
		s.logger.Warn().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency key")
	}
}

// UpdateContact applies a partial update. Only touched fields are validated.
// When a new photo replaces an old one, the old one is queued for removal.
func (s *ContactService) UpdateContact(ctx context.Context, id, ownerID string, in ports.UpdateContactInput) (*domain.Contact, error) {
	patch := domain.ContactPatch{
		Name:        in.Name,
		PhoneNumber: in.PhoneNumber,
		Email:       in.Email,
		IsFavourite: in.IsFavourite,
	}
	if in.ContactType != nil {
		ct := domain.ContactType(*in.ContactType)
		patch.ContactType = &ct
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var previousPhoto string
	if in.Photo != nil {
		// Resolve ownership before anything is written to the sink.
		current, err := s.repo.FindByID(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		previousPhoto = current.Photo

		url, err := s.storePhoto(ctx, *in.Photo)
		if err != nil {
			return nil, err
		}
		patch.Photo = &url
	}

	if patch.Empty() {
		return s.repo.FindByID(ctx, id, ownerID)
	}

	updated, err := s.repo.Update(ctx, id, ownerID, patch, ports.UpdateOptions{ReturnNew: true})
	if err != nil {
		if patch.Photo != nil {
			s.discardPhoto(ownerID, *patch.Photo, "update_failed")
		}
		return nil, err
	}

	if patch.Photo != nil && previousPhoto != "" && previousPhoto != *patch.Photo {
		s.discardPhoto(ownerID, previousPhoto, "replaced")
	}

	s.logger.Info().Str("contact_id", id).Str("owner_id", ownerID).Msg("contact updated")
	return updated, nil
}

// DeleteContact removes the contact and queues its photo for removal.
func (s *ContactService) DeleteContact(ctx context.Context, id, ownerID string) error {
	deleted, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return err
	}

	s.discardPhoto(ownerID, deleted.Photo, "deleted")
	metrics.ContactsDeletedTotal.Inc()
	s.logger.Info().Str("contact_id", id).Str("owner_id", ownerID).Msg("contact deleted")
	return nil
}

func (s *ContactService) storePhoto(ctx context.Context, file ports.Upload) (string, error) {
	url, err := s.sink.Store(ctx, file)
	if err != nil {
		metrics.PhotoUploadsTotal.WithLabelValues(s.sink.Backend(), "error").Inc()
		s.logger.Error().Err(err).Str("backend", s.sink.Backend()).Str("filename", file.Filename).Msg("photo upload failed")
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		return "", err
	}
	metrics.PhotoUploadsTotal.WithLabelValues(s.sink.Backend(), "ok").Inc()
	return url, nil
}

func (s *ContactService) discardPhoto(ownerID, url, reason string) {
	if s.cleaner == nil || url == "" {
		return
	}
	s.cleaner.Enqueue(ports.PhotoCleanupJob{OwnerID: ownerID, URL: url, Reason: reason})
}
