package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/phonebook/contacts-api/internal/core/domain"
	"github.com/phonebook/contacts-api/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stubs
// ---------------------------------------------------------------------------

type stubContactRepo struct {
	byID      map[string]*domain.Contact
	nextID    int
	createErr error
	updates   int
}

func newStubContactRepo() *stubContactRepo {
	return &stubContactRepo{byID: make(map[string]*domain.Contact)}
}

func cloneContact(c *domain.Contact) *domain.Contact {
	clone := *c
	return &clone
}

// owned mirrors the {_id, owner_id} filter of the real repository.
func (r *stubContactRepo) owned(id, ownerID string) (*domain.Contact, error) {
	c, ok := r.byID[id]
	if !ok || c.OwnerID != ownerID {
		return nil, domain.ErrContactNotFound
	}
	return c, nil
}

func (r *stubContactRepo) List(_ context.Context, ownerID string, q domain.ListQuery) ([]*domain.Contact, int64, error) {
	var matched []*domain.Contact
	for _, c := range r.byID {
		if c.OwnerID != ownerID {
			continue
		}
		if q.Filter.ContactType != nil && c.ContactType != *q.Filter.ContactType {
			continue
		}
		if q.Filter.IsFavourite != nil && c.IsFavourite != *q.Filter.IsFavourite {
			continue
		}
		matched = append(matched, cloneContact(c))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	skip := int(q.Skip())
	if skip > len(matched) {
		return []*domain.Contact{}, total, nil
	}
	end := skip + q.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[skip:end], total, nil
}

func (r *stubContactRepo) FindByID(_ context.Context, id, ownerID string) (*domain.Contact, error) {
	c, err := r.owned(id, ownerID)
	if err != nil {
		return nil, err
	}
	return cloneContact(c), nil
}

func (r *stubContactRepo) Create(_ context.Context, c *domain.Contact) error {
	if r.createErr != nil {
		return r.createErr
	}
	if err := c.Validate(); err != nil {
		return err
	}
	r.nextID++
	c.ID = fmt.Sprintf("c%03d", r.nextID)
	r.byID[c.ID] = cloneContact(c)
	return nil
}

func (r *stubContactRepo) Update(_ context.Context, id, ownerID string, patch domain.ContactPatch, opts ports.UpdateOptions) (*domain.Contact, error) {
	c, err := r.owned(id, ownerID)
	if err != nil {
		return nil, err
	}
	r.updates++
	before := cloneContact(c)
	applyPatch(c, patch)
	if opts.ReturnNew {
		return cloneContact(c), nil
	}
	return before, nil
}

// applyPatch copies the touched fields of p onto c.
func applyPatch(c *domain.Contact, p domain.ContactPatch) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.PhoneNumber != nil {
		c.PhoneNumber = *p.PhoneNumber
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.IsFavourite != nil {
		c.IsFavourite = *p.IsFavourite
	}
	if p.ContactType != nil {
		c.ContactType = *p.ContactType
	}
	if p.Photo != nil {
		c.Photo = *p.Photo
	}
}

func (r *stubContactRepo) Delete(_ context.Context, id, ownerID string) (*domain.Contact, error) {
	c, err := r.owned(id, ownerID)
	if err != nil {
		return nil, err
	}
	delete(r.byID, id)
	return c, nil
}

type stubSink struct {
	stored  []string
	err     error
	counter int
}

func (s *stubSink) Store(_ context.Context, f ports.Upload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.counter++
	url := fmt.Sprintf("http://cdn.test/%d-%s", s.counter, f.Filename)
	s.stored = append(s.stored, url)
	return url, nil
}

func (s *stubSink) Remove(context.Context, string) error { return nil }
func (s *stubSink) Backend() string                       { return "stub" }

type stubCleaner struct {
	jobs []ports.PhotoCleanupJob
}

func (c *stubCleaner) Enqueue(job ports.PhotoCleanupJob) { c.jobs = append(c.jobs, job) }

type stubIdempotency struct {
	keys       map[string]string // "" marks a pending reservation
	reserveErr error
	released   []string
}

func newStubIdempotency() *stubIdempotency {
	return &stubIdempotency{keys: make(map[string]string)}
}

func (s *stubIdempotency) Reserve(_ context.Context, ownerID, key string) (string, bool, error) {
	if s.reserveErr != nil {
		return "", false, s.reserveErr
	}
	id, held := s.keys[ownerID+":"+key]
	if held {
		return id, false, nil
	}
	s.keys[ownerID+":"+key] = ""
	return "", true, nil
}

func (s *stubIdempotency) Remember(_ context.Context, ownerID, key, contactID string) error {
	s.keys[ownerID+":"+key] = contactID
	return nil
}

func (s *stubIdempotency) Release(_ context.Context, ownerID, key string) error {
	delete(s.keys, ownerID+":"+key)
	s.released = append(s.released, ownerID+":"+key)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fixture struct {
	repo    *stubContactRepo
	sink    *stubSink
	cleaner *stubCleaner
	idem    *stubIdempotency
	svc     *ContactService
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newStubContactRepo(),
		sink:    &stubSink{},
		cleaner: &stubCleaner{},
		idem:    newStubIdempotency(),
	}
	f.svc = NewContactService(f.repo, f.sink, f.cleaner, f.idem, zerolog.Nop())
	return f
}

func photo(name string) *ports.Upload {
	return &ports.Upload{Filename: name, ContentType: "image/png", Body: strings.NewReader("png")}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func mustCreate(t *testing.T, f *fixture, ownerID string, in ports.CreateContactInput) *domain.Contact {
	t.Helper()
	c, err := f.svc.CreateContact(context.Background(), ownerID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestContactService_Create_Defaults(t *testing.T) {
	f := newFixture()

	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123"})

	if c.ContactType != domain.ContactTypePersonal {
		t.Errorf("expected default contact type, got %q", c.ContactType)
	}
	if c.IsFavourite {
		t.Error("expected isFavourite=false by default")
	}
	if c.OwnerID != "alice" {
		t.Errorf("expected owner alice, got %q", c.OwnerID)
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Error("timestamps must be set")
	}
	if c.ID == "" {
		t.Error("expected an id")
	}
}

func TestContactService_Create_RejectsUnknownType(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateContact(context.Background(), "alice", ports.CreateContactInput{
		Name: "Ann", PhoneNumber: "123", ContactType: "alien", Photo: photo("a.png"),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(f.repo.byID) != 0 {
		t.Fatal("no contact must be stored")
	}
	if len(f.sink.stored) != 0 {
		t.Fatal("photo must not be uploaded for an invalid payload")
	}
}

func TestContactService_Create_MissingRequiredFields(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateContact(context.Background(), "alice", ports.CreateContactInput{Name: "Ann"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestContactService_Create_WithPhoto(t *testing.T) {
	f := newFixture()

	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", Photo: photo("ann.png")})

	if c.Photo == "" || c.Photo != f.sink.stored[0] {
		t.Fatalf("expected photo url from sink, got %q", c.Photo)
	}
	if f.repo.byID[c.ID].Photo != c.Photo {
		t.Fatal("photo url must be persisted")
	}
}

func TestContactService_Create_SinkFailureAborts(t *testing.T) {
	f := newFixture()
	f.sink.err = errors.New("bucket unreachable")

	_, err := f.svc.CreateContact(context.Background(), "alice", ports.CreateContactInput{
		Name: "Ann", PhoneNumber: "123", Photo: photo("ann.png"),
	})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(f.repo.byID) != 0 {
		t.Fatal("no contact must be created when the photo upload fails")
	}
}

func TestContactService_Create_RepoFailureDiscardsPhoto(t *testing.T) {
	f := newFixture()
	f.repo.createErr = errors.New("db unavailable")

	_, err := f.svc.CreateContact(context.Background(), "alice", ports.CreateContactInput{
		Name: "Ann", PhoneNumber: "123", Photo: photo("ann.png"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.cleaner.jobs) != 1 || f.cleaner.jobs[0].URL != f.sink.stored[0] {
		t.Fatalf("expected orphaned photo to be queued for cleanup, got %+v", f.cleaner.jobs)
	}
}

func TestContactService_Create_IdempotentReplay(t *testing.T) {
	f := newFixture()
	in := ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", Photo: photo("ann.png"), IdempotencyKey: "k1"}

	first := mustCreate(t, f, "alice", in)
	in.Photo = photo("ann.png")
	second := mustCreate(t, f, "alice", in)

	if first.ID != second.ID {
		t.Fatalf("expected replay to return %q, got %q", first.ID, second.ID)
	}
	if len(f.repo.byID) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(f.repo.byID))
	}
	if len(f.sink.stored) != 1 {
		t.Fatalf("replay must not upload the photo again, got %d uploads", len(f.sink.stored))
	}

	// Keys are scoped per owner.
	other := mustCreate(t, f, "bob", in)
	if other.ID == first.ID {
		t.Fatal("idempotency key must not leak across owners")
	}
}

func TestContactService_Create_IdempotencyReserveFailureStillCreates(t *testing.T) {
	f := newFixture()
	f.idem.reserveErr = errors.New("redis down")

	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", IdempotencyKey: "k1"})
	if c.ID == "" {
		t.Fatal("expected contact to be created")
	}
}

func TestContactService_Create_SameKeyInFlightConflicts(t *testing.T) {
	f := newFixture()
	// A first request has claimed the key but not finished yet.
	f.idem.keys["alice:k1"] = ""

	_, err := f.svc.CreateContact(context.Background(), "alice", ports.CreateContactInput{
		Name: "Ann", PhoneNumber: "123", Photo: photo("ann.png"), IdempotencyKey: "k1",
	})
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
	if len(f.repo.byID) != 0 || len(f.sink.stored) != 0 {
		t.Fatal("a conflicting request must neither create nor upload")
	}
}

func TestContactService_Create_FailedCreateReleasesKey(t *testing.T) {
	f := newFixture()
	f.repo.createErr = errors.New("db unavailable")
	in := ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", IdempotencyKey: "k1"}

	if _, err := f.svc.CreateContact(context.Background(), "alice", in); err == nil {
		t.Fatal("expected error")
	}
	if len(f.idem.released) != 1 || f.idem.released[0] != "alice:k1" {
		t.Fatalf("expected key to be released, got %v", f.idem.released)
	}

	f.repo.createErr = nil
	c := mustCreate(t, f, "alice", in)
	if f.idem.keys["alice:k1"] != c.ID {
		t.Fatalf("expected retry to record %q, got %q", c.ID, f.idem.keys["alice:k1"])
	}
}

func TestContactService_Create_StaleKeyIsTakenOver(t *testing.T) {
	f := newFixture()
	f.idem.keys["alice:k1"] = "gone"

	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", IdempotencyKey: "k1"})
	if f.idem.keys["alice:k1"] != c.ID {
		t.Fatalf("expected key to point at the new contact, got %q", f.idem.keys["alice:k1"])
	}
}

// ---------------------------------------------------------------------------
// Read / list
// ---------------------------------------------------------------------------

func TestContactService_Get_RoundTrip(t *testing.T) {
	f := newFixture()
	created := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", ContactType: "work"})

	got, err := f.svc.GetContact(context.Background(), created.ID, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContactType != domain.ContactTypeWork || got.IsFavourite || got.OwnerID != "alice" {
		t.Fatalf("unexpected contact: %+v", got)
	}
}

func TestContactService_List_Pagination(t *testing.T) {
	f := newFixture()
	for i := 0; i < 25; i++ {
		mustCreate(t, f, "alice", ports.CreateContactInput{Name: fmt.Sprintf("c%d", i), PhoneNumber: "1"})
	}
	mustCreate(t, f, "bob", ports.CreateContactInput{Name: "bob's", PhoneNumber: "1"})

	page, err := f.svc.ListContacts(context.Background(), "alice", domain.ListQuery{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalItems != 25 || page.TotalPages != 3 || len(page.Items) != 10 {
		t.Fatalf("unexpected page: total=%d pages=%d items=%d", page.TotalItems, page.TotalPages, len(page.Items))
	}
	if !page.HasNextPage || page.HasPreviousPage {
		t.Fatalf("unexpected navigation flags: next=%v prev=%v", page.HasNextPage, page.HasPreviousPage)
	}

	last, _ := f.svc.ListContacts(context.Background(), "alice", domain.ListQuery{Page: 3, PerPage: 10})
	if len(last.Items) != 5 || last.HasNextPage || !last.HasPreviousPage {
		t.Fatalf("unexpected last page: items=%d next=%v prev=%v", len(last.Items), last.HasNextPage, last.HasPreviousPage)
	}

	beyond, _ := f.svc.ListContacts(context.Background(), "alice", domain.ListQuery{Page: 9, PerPage: 10})
	if beyond.Items == nil || len(beyond.Items) != 0 {
		t.Fatalf("expected empty non-nil items beyond the last page")
	}
}

func TestContactService_List_EmptyHasZeroPages(t *testing.T) {
	f := newFixture()

	page, err := f.svc.ListContacts(context.Background(), "alice", domain.ListQuery{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalPages != 0 || page.HasNextPage || page.HasPreviousPage || page.Items == nil {
		t.Fatalf("unexpected empty page: %+v", page)
	}
}

func TestContactService_List_Filter(t *testing.T) {
	f := newFixture()
	mustCreate(t, f, "alice", ports.CreateContactInput{Name: "a", PhoneNumber: "1", ContactType: "work", IsFavourite: true})
	mustCreate(t, f, "alice", ports.CreateContactInput{Name: "b", PhoneNumber: "1", ContactType: "work"})
	mustCreate(t, f, "alice", ports.CreateContactInput{Name: "c", PhoneNumber: "1", ContactType: "home", IsFavourite: true})

	work := domain.ContactTypeWork
	page, _ := f.svc.ListContacts(context.Background(), "alice", domain.ListQuery{
		Page: 1, PerPage: 10,
		Filter: domain.ContactFilter{ContactType: &work, IsFavourite: boolPtr(true)},
	})
	if page.TotalItems != 1 || page.Items[0].Name != "a" {
		t.Fatalf("unexpected filter result: %+v", page.Items)
	}
}

// ---------------------------------------------------------------------------
// Ownership
// ---------------------------------------------------------------------------

func TestContactService_OwnershipIsolation(t *testing.T) {
	f := newFixture()
	bobs := mustCreate(t, f, "bob", ports.CreateContactInput{Name: "Bob's friend", PhoneNumber: "9"})
	ctx := context.Background()

	if _, err := f.svc.GetContact(ctx, bobs.ID, "alice"); !errors.Is(err, domain.ErrContactNotFound) {
		t.Errorf("get: expected ErrContactNotFound, got %v", err)
	}
	if _, err := f.svc.UpdateContact(ctx, bobs.ID, "alice", ports.UpdateContactInput{Name: strPtr("hijack")}); !errors.Is(err, domain.ErrContactNotFound) {
		t.Errorf("update: expected ErrContactNotFound, got %v", err)
	}
	if _, err := f.svc.UpdateContact(ctx, bobs.ID, "alice", ports.UpdateContactInput{Photo: photo("x.png")}); !errors.Is(err, domain.ErrContactNotFound) {
		t.Errorf("update with photo: expected ErrContactNotFound, got %v", err)
	}
	if len(f.sink.stored) != 0 {
		t.Errorf("no photo may be stored for a contact the caller does not own")
	}
	if err := f.svc.DeleteContact(ctx, bobs.ID, "alice"); !errors.Is(err, domain.ErrContactNotFound) {
		t.Errorf("delete: expected ErrContactNotFound, got %v", err)
	}

	still, err := f.svc.GetContact(ctx, bobs.ID, "bob")
	if err != nil || still.Name != "Bob's friend" {
		t.Fatalf("bob's contact must be untouched: %+v, %v", still, err)
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestContactService_Update_Partial(t *testing.T) {
	f := newFixture()
	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", Email: "ann@example.com"})

	updated, err := f.svc.UpdateContact(context.Background(), c.ID, "alice", ports.UpdateContactInput{
		IsFavourite: boolPtr(true),
		ContactType: strPtr("home"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.IsFavourite || updated.ContactType != domain.ContactTypeHome {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Name != "Ann" || updated.PhoneNumber != "123" || updated.Email != "ann@example.com" {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
}

func TestContactService_Update_SamePatchTwiceIsStable(t *testing.T) {
	f := newFixture()
	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123"})
	in := ports.UpdateContactInput{Name: strPtr("Anna"), IsFavourite: boolPtr(true)}

	first, err := f.svc.UpdateContact(context.Background(), c.ID, "alice", in)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	second, err := f.svc.UpdateContact(context.Background(), c.ID, "alice", in)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if first.Name != second.Name || first.IsFavourite != second.IsFavourite || first.ContactType != second.ContactType {
		t.Fatalf("state diverged: %+v vs %+v", first, second)
	}
}

func TestContactService_Update_Validation(t *testing.T) {
	f := newFixture()
	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123"})

	_, err := f.svc.UpdateContact(context.Background(), c.ID, "alice", ports.UpdateContactInput{ContactType: strPtr("alien")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	_, err = f.svc.UpdateContact(context.Background(), c.ID, "alice", ports.UpdateContactInput{Name: strPtr("")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty name, got %v", err)
	}
	if f.repo.updates != 0 {
		t.Fatal("invalid patches must not reach the repository")
	}
}

func TestContactService_Update_EmptyPatchReturnsCurrent(t *testing.T) {
	f := newFixture()
	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123"})

	got, err := f.svc.UpdateContact(context.Background(), c.ID, "alice", ports.UpdateContactInput{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ID != c.ID || f.repo.updates != 0 {
		t.Fatalf("empty patch should read, not write")
	}
}

func TestContactService_Update_PhotoReplacementQueuesOldPhoto(t *testing.T) {
	f := newFixture()
	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", Photo: photo("old.png")})
	oldURL := c.Photo

	updated, err := f.svc.UpdateContact(context.Background(), c.ID, "alice", ports.UpdateContactInput{Photo: photo("new.png")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Photo == oldURL || updated.Photo == "" {
		t.Fatalf("expected new photo url, got %q", updated.Photo)
	}
	if len(f.cleaner.jobs) != 1 || f.cleaner.jobs[0].URL != oldURL || f.cleaner.jobs[0].Reason != "replaced" {
		t.Fatalf("expected old photo cleanup, got %+v", f.cleaner.jobs)
	}
}

func TestContactService_Update_SinkFailureLeavesContactUntouched(t *testing.T) {
	f := newFixture()
	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123"})
	f.sink.err = errors.New("disk full")

	_, err := f.svc.UpdateContact(context.Background(), c.ID, "alice", ports.UpdateContactInput{
		Name: strPtr("Anna"), Photo: photo("new.png"),
	})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if f.repo.byID[c.ID].Name != "Ann" {
		t.Fatal("no field may change when the photo upload fails")
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestContactService_Delete_TwiceIsNotFound(t *testing.T) {
	f := newFixture()
	c := mustCreate(t, f, "alice", ports.CreateContactInput{Name: "Ann", PhoneNumber: "123", Photo: photo("ann.png")})

	if err := f.svc.DeleteContact(context.Background(), c.ID, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.svc.DeleteContact(context.Background(), c.ID, "alice"); !errors.Is(err, domain.ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound on second delete, got %v", err)
	}
	if len(f.cleaner.jobs) != 1 || f.cleaner.jobs[0].Reason != "deleted" {
		t.Fatalf("expected photo cleanup after delete, got %+v", f.cleaner.jobs)
	}
}

func TestContactService_NilOptionalCollaborators(t *testing.T) {
	repo := newStubContactRepo()
	svc := NewContactService(repo, &stubSink{}, nil, nil, zerolog.Nop())

	c, err := svc.CreateContact(context.Background(), "alice", ports.CreateContactInput{
		Name: "Ann", PhoneNumber: "123", Photo: photo("a.png"), IdempotencyKey: "k",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteContact(context.Background(), c.ID, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
