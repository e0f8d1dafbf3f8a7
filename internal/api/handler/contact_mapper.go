package handler

import (
	"github.com/phonebook/contacts-api/internal/core/domain"
	"github.com/phonebook/contacts-api/internal/core/ports"
)

func toContactResponse(c *domain.Contact) contactResponse {
	return contactResponse{
		ID:          c.ID,
		Name:        c.Name,
		PhoneNumber: c.PhoneNumber,
		Email:       c.Email,
		IsFavourite: c.IsFavourite,
		ContactType: string(c.ContactType),
		Photo:       c.Photo,
		OwnerID:     c.OwnerID,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toContactListResponse(p *ports.ContactPage) contactListResponse {
	items := make([]contactResponse, 0, len(p.Items))
	for _, c := range p.Items {
		items = append(items, toContactResponse(c))
	}
	return contactListResponse{
		Items:           items,
		Page:            p.Page,
		PerPage:         p.PerPage,
		TotalItems:      p.TotalItems,
		TotalPages:      p.TotalPages,
		HasNextPage:     p.HasNextPage,
		HasPreviousPage: p.HasPreviousPage,
	}
}

func (r createContactRequest) toInput() ports.CreateContactInput {
	return ports.CreateContactInput{
		Name:        r.Name,
		PhoneNumber: r.PhoneNumber,
		Email:       r.Email,
		IsFavourite: r.IsFavourite,
		ContactType: r.ContactType,
	}
}

func (r patchContactRequest) toInput() ports.UpdateContactInput {
	return ports.UpdateContactInput{
		Name:        r.Name,
		PhoneNumber: r.PhoneNumber,
		Email:       r.Email,
		IsFavourite: r.IsFavourite,
		ContactType: r.ContactType,
	}
}
