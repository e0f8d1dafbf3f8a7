package handler

import "time"

// response is the envelope every successful API response is wrapped in.
type response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorResponse documents the error envelope rendered by the central error
// handler.
type errorResponse struct {
	Status  int    `json:"status"  example:"404"`
	Message string `json:"message" example:"Contact not found"`
}

// --- Request types ---

type createContactRequest struct {
	Name        string `json:"name"        validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Email       string `json:"email"       validate:"omitempty,email"`
	IsFavourite bool   `json:"isFavourite"`
	ContactType string `json:"contactType" validate:"omitempty,oneof=personal home work"`
}

// patchContactRequest leaves absent fields nil so they are not touched.
type patchContactRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
	Email       *string `json:"email"`
	IsFavourite *bool   `json:"isFavourite"`
	ContactType *string `json:"contactType" validate:"omitnil,oneof=personal home work"`
}

// --- Response types ---

type contactResponse struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	Email       string    `json:"email,omitempty"`
	IsFavourite bool      `json:"isFavourite"`
	ContactType string    `json:"contactType"`
	Photo       string    `json:"photo,omitempty"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type contactListResponse struct {
	Items           []contactResponse `json:"items"`
	Page            int               `json:"page"`
	PerPage         int               `json:"perPage"`
	TotalItems      int64             `json:"totalItems"`
	TotalPages      int               `json:"totalPages"`
	HasNextPage     bool              `json:"hasNextPage"`
	HasPreviousPage bool              `json:"hasPreviousPage"`
}

// contactEnvelope and contactListEnvelope exist for the API docs only.
type contactEnvelope struct {
	Status  int             `json:"status"  example:"200"`
	Message string          `json:"message"`
	Data    contactResponse `json:"data"`
}

type contactListEnvelope struct {
	Status  int                 `json:"status"  example:"200"`
	Message string              `json:"message" example:"Successfully found contacts!"`
	Data    contactListResponse `json:"data"`
}
