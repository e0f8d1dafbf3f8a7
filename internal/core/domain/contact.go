package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContactType classifies an address-book entry.
type ContactType string

const (
	ContactTypePersonal ContactType = "personal"
	ContactTypeHome     ContactType = "home"
	ContactTypeWork     ContactType = "work"
)

// DefaultContactType is applied when a contact is created without a type.
const DefaultContactType = ContactTypePersonal

// ContactTypes lists every accepted contact type, in display order.
var ContactTypes = []ContactType{ContactTypePersonal, ContactTypeHome, ContactTypeWork}

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrInvalidID       = errors.New("invalid contact id")
	ErrValidation      = errors.New("validation failed")
	ErrStorage         = errors.New("photo storage failed")
)

// ErrIdempotencyConflict is returned while another request holding the same
// Idempotency-Key has not finished yet.
var ErrIdempotencyConflict = errors.New("request with this idempotency key is in progress")

// Valid reports whether t is one of ContactTypes.
func (t ContactType) Valid() bool {
	for _, allowed := range ContactTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// ParseContactType returns the matching ContactType. ok is false for any
// value outside ContactTypes.
func ParseContactType(s string) (ContactType, bool) {
	t := ContactType(s)
	return t, t.Valid()
}

// Contact is a single address-book entry owned by exactly one user.
type Contact struct {
	ID          string      `json:"_id"`
	Name        string      `json:"name"`
	PhoneNumber string      `json:"phoneNumber"`
	Email       string      `json:"email,omitempty"`
	IsFavourite bool        `json:"isFavourite"`
	ContactType ContactType `json:"contactType"`
	Photo       string      `json:"photo,omitempty"`
	OwnerID     string      `json:"ownerId"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Validate checks the invariants every stored contact must satisfy.
func (c *Contact) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(c.PhoneNumber) == "" {
		problems = append(problems, "phoneNumber is required")
	}
	if c.Email != "" && !ValidEmail(c.Email) {
		problems = append(problems, "email must be a valid email")
	}
	if !c.ContactType.Valid() {
		problems = append(problems, fmt.Sprintf("contactType must be one of: %s", contactTypeList()))
	}
	if c.OwnerID == "" {
		problems = append(problems, "ownerId is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// ContactPatch carries a partial update. Nil fields are left untouched.
type ContactPatch struct {
	Name        *string
	PhoneNumber *string
	Email       *string
	IsFavourite *bool
	ContactType *ContactType
	Photo       *string
}

// Empty reports whether the patch touches no field.
func (p ContactPatch) Empty() bool {
	return p.Name == nil && p.PhoneNumber == nil && p.Email == nil &&
		p.IsFavourite == nil && p.ContactType == nil && p.Photo == nil
}

// Validate re-applies the contact invariants to the touched fields only.
func (p ContactPatch) Validate() error {
	var problems []string
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		problems = append(problems, "name must not be empty")
	}
	if p.PhoneNumber != nil && strings.TrimSpace(*p.PhoneNumber) == "" {
		problems = append(problems, "phoneNumber must not be empty")
	}
	if p.Email != nil && *p.Email != "" && !ValidEmail(*p.Email) {
		problems = append(problems, "email must be a valid email")
	}
	if p.ContactType != nil && !p.ContactType.Valid() {
		problems = append(problems, fmt.Sprintf("contactType must be one of: %s", contactTypeList()))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func contactTypeList() string {
	names := make([]string, len(ContactTypes))
	for i, t := range ContactTypes {
		names[i] = string(t)
	}
	return strings.Join(names, " ")
}
