package ports

import (
	"context"

	"github.com/phonebook/contacts-api/internal/core/domain"
)

// UpdateOptions controls what ContactRepository.Update returns.
type UpdateOptions struct {
	// ReturnNew selects the post-update document; false returns the
	// document as it was before the update.
	ReturnNew bool
}

// ContactRepository defines persistence operations for contacts.
// ownerID is mandatory on every method and is always part of the query, so
// a contact owned by someone else behaves exactly like a missing one.
type ContactRepository interface {
	// List returns one page of the owner's contacts and the total number of
	// contacts matching the filter.
	List(ctx context.Context, ownerID string, q domain.ListQuery) ([]*domain.Contact, int64, error)
	FindByID(ctx context.Context, id, ownerID string) (*domain.Contact, error)
	// Create inserts c and sets its ID. c.OwnerID must already be set.
	Create(ctx context.Context, c *domain.Contact) error
	Update(ctx context.Context, id, ownerID string, patch domain.ContactPatch, opts UpdateOptions) (*domain.Contact, error)
	// Delete removes the contact and returns it as it was stored.
	Delete(ctx context.Context, id, ownerID string) (*domain.Contact, error)
}
