package ports

import (
	"context"
	"io"

	"github.com/phonebook/contacts-api/internal/core/domain"
)

// Upload is an attached file on its way to a BlobSink.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CreateContactInput carries everything needed to create a contact.
type CreateContactInput struct {
	Name        string
	PhoneNumber string
	Email       string
	IsFavourite bool
	ContactType string // empty = domain.DefaultContactType
	Photo       *Upload
	// IdempotencyKey, when set, makes retries of the same request return the
	// contact created by the first attempt.
	IdempotencyKey string
}

// UpdateContactInput is a partial update; nil fields are left untouched.
type UpdateContactInput struct {
	Name        *string
	PhoneNumber *string
	Email       *string
	IsFavourite *bool
	ContactType *string
	Photo       *Upload
}

// ContactPage is one page of a listing plus its pagination metadata.
type ContactPage struct {
	Items           []*domain.Contact
	Page            int
	PerPage         int
	TotalItems      int64
	TotalPages      int
	HasNextPage     bool
	HasPreviousPage bool
}

// ContactService defines the contact use cases. Every method is scoped to
// ownerID.
type ContactService interface {
	ListContacts(ctx context.Context, ownerID string, q domain.ListQuery) (*ContactPage, error)
	GetContact(ctx context.Context, id, ownerID string) (*domain.Contact, error)
	CreateContact(ctx context.Context, ownerID string, in CreateContactInput) (*domain.Contact, error)
	UpdateContact(ctx context.Context, id, ownerID string, in UpdateContactInput) (*domain.Contact, error)
	DeleteContact(ctx context.Context, id, ownerID string) error
}
