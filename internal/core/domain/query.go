package domain

import "math"

// SortField is an API-level sortable attribute of a contact. Only the
// constants below exist; storage adapters map each one to their own field.
type SortField string

const (
	SortByID          SortField = "_id"
	SortByName        SortField = "name"
	SortByPhoneNumber SortField = "phoneNumber"
	SortByEmail       SortField = "email"
	SortByIsFavourite SortField = "isFavourite"
	SortByContactType SortField = "contactType"
	SortByCreatedAt   SortField = "createdAt"
	SortByUpdatedAt   SortField = "updatedAt"
)

// SortFields is the sort allow-list.
var SortFields = []SortField{
	SortByID, SortByName, SortByPhoneNumber, SortByEmail,
	SortByIsFavourite, SortByContactType, SortByCreatedAt, SortByUpdatedAt,
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ContactFilter is sparse: a nil field places no constraint on the query.
type ContactFilter struct {
	ContactType *ContactType
	IsFavourite *bool
}

// ListQuery is the validated input of a contact listing. Page is 1-based.
type ListQuery struct {
	Page      int
	PerPage   int
	SortBy    SortField
	SortOrder SortOrder
	Filter    ContactFilter
}

// Skip returns the number of documents preceding the requested page. It
// saturates at math.MaxInt64 instead of overflowing.
func (q ListQuery) Skip() int64 {
	if q.Page < 1 || q.PerPage < 1 {
		return 0
	}
	pages, per := int64(q.Page-1), int64(q.PerPage)
	if pages > math.MaxInt64/per {
		return math.MaxInt64
	}
	return pages * per
}
