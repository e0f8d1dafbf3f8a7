// Package params turns untrusted query-string input into bounded, validated
// listing parameters. Parsers never fail: anything unusable falls back to a
// default or, for filters, is dropped.
package params

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/phonebook/contacts-api/internal/core/domain"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 20
	MaxPage        = math.MaxInt32

	DefaultSortBy    = domain.SortByID
	DefaultSortOrder = domain.SortAsc
)

type Pagination struct {
	Page    int
	PerPage int
}

type Sort struct {
	By    domain.SortField
	Order domain.SortOrder
}

// ParsePagination parses page and perPage. Non-numeric or non-positive values
// fall back to the defaults, as does a page above MaxPage; perPage above
// MaxPerPage is capped.
func ParsePagination(page, perPage string) Pagination {
	p := Pagination{
		Page:    parsePositive(page, DefaultPage),
		PerPage: parsePositive(perPage, DefaultPerPage),
	}
	if p.Page > MaxPage {
		p.Page = DefaultPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func parsePositive(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// ParseSort accepts sortBy only from domain.SortFields and sortOrder only as
// asc/desc in any case.
func ParseSort(sortBy, sortOrder string) Sort {
	s := Sort{By: DefaultSortBy, Order: DefaultSortOrder}
	for _, f := range domain.SortFields {
		if string(f) == sortBy {
			s.By = f
			break
		}
	}
	switch strings.ToLower(strings.TrimSpace(sortOrder)) {
	case string(domain.SortAsc):
		s.Order = domain.SortAsc
	case string(domain.SortDesc):
		s.Order = domain.SortDesc
	}
	return s
}

// ParseFilter builds a sparse filter. contactType outside the enum and any
// isFavourite other than the literals "true"/"false" are omitted.
func ParseFilter(contactType, isFavourite string) domain.ContactFilter {
	var f domain.ContactFilter
	if t, ok := domain.ParseContactType(contactType); ok {
		f.ContactType = &t
	}
	switch isFavourite {
	case "true":
		v := true
		f.IsFavourite = &v
	case "false":
		v := false
		f.IsFavourite = &v
	}
	return f
}

// FromQuery parses a full listing request.
func FromQuery(q url.Values) domain.ListQuery {
	p := ParsePagination(q.Get("page"), q.Get("perPage"))
	s := ParseSort(q.Get("sortBy"), q.Get("sortOrder"))
	return domain.ListQuery{
		Page:      p.Page,
		PerPage:   p.PerPage,
		SortBy:    s.By,
		SortOrder: s.Order,
		Filter:    ParseFilter(q.Get("contactType"), q.Get("isFavourite")),
	}
}
