package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"github.com/phonebook/contacts-api/internal/api/params"
	"github.com/phonebook/contacts-api/internal/core/domain"
	"github.com/phonebook/contacts-api/internal/core/ports"
)

// HeaderIdempotencyKey makes POST /contacts safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// photoField is the multipart field carrying the contact photo.
const photoField = "photo"

// ContactHandler handles HTTP requests for the contacts collection.
type ContactHandler struct {
	service ports.ContactService
}

func NewContactHandler(service ports.ContactService) *ContactHandler {
	return &ContactHandler{service: service}
}

// List handles GET /contacts.
//
// @Summary      List contacts
// @Description  Returns one page of the caller's contacts. Invalid paging or sorting input falls back to defaults.
// @Tags         contacts
// @Produce      json
// @Security     BearerAuth
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        perPage      query     int     false  "Page size (default 10, max 20)"
// @Param        sortBy       query     string  false  "Sort field"  Enums(_id, name, phoneNumber, email, isFavourite, contactType, createdAt, updatedAt)
// @Param        sortOrder    query     string  false  "Sort order"  Enums(asc, desc)
// @Param        contactType  query     string  false  "Filter by type"  Enums(personal, home, work)
// @Param        isFavourite  query     bool    false  "Filter by favourite flag"
// @Success      200          {object}  contactListEnvelope
// @Failure      401          {object}  errorResponse
// @Failure      500          {object}  errorResponse
// @Router       /contacts [get]
func (h *ContactHandler) List(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	page, err := h.service.ListContacts(c.Request().Context(), userID, params.FromQuery(c.QueryParams()))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response{
		Status:  http.StatusOK,
		Message: "Successfully found contacts!",
		Data:    toContactListResponse(page),
	})
}

// Get handles GET /contacts/:contactId.
//
// @Summary      Get a contact
// @Tags         contacts
// @Produce      json
// @Security     BearerAuth
// @Param        contactId  path      string  true  "Contact id (24 hex characters)"
// @Success      200        {object}  contactEnvelope
// @Failure      400        {object}  errorResponse
// @Failure      401        {object}  errorResponse
// @Failure      404        {object}  errorResponse
// @Router       /contacts/{contactId} [get]
func (h *ContactHandler) Get(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	id := c.Param("contactId")
	contact, err := h.service.GetContact(c.Request().Context(), id, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response{
		Status:  http.StatusOK,
		Message: fmt.Sprintf("Successfully found contact with id %s!", id),
		Data:    toContactResponse(contact),
	})
}

// Create handles POST /contacts.
//
// @Summary      Create a contact
// @Description  Accepts JSON, or multipart/form-data with an optional image in the "photo" field.
// @Tags         contacts
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string                false  "Retries with the same key return the contact created first"
// @Param        body             body      createContactRequest  false  "Contact (JSON requests)"
// @Param        photo            formData  file                  false  "Contact photo (multipart requests)"
// @Success      201              {object}  contactEnvelope
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      409              {object}  errorResponse
// @Failure      500              {object}  errorResponse
// @Router       /contacts [post]
func (h *ContactHandler) Create(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req createContactRequest
	if isMultipart(c) {
		req, err = createRequestFromForm(c)
	} else {
		err = c.Bind(&req)
	}
	if err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	in := req.toInput()
	in.IdempotencyKey = strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))

	photo, closePhoto, err := readPhoto(c)
	if err != nil {
		return err
	}
	defer closePhoto()
	in.Photo = photo

	contact, err := h.service.CreateContact(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, response{
		Status:  http.StatusCreated,
		Message: "Successfully created a contact!",
		Data:    toContactResponse(contact),
	})
}

// Patch handles PATCH /contacts/:contactId.
//
// @Summary      Update a contact
// @Description  Only the supplied fields change. An empty body returns the contact unchanged.
// @Tags         contacts
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        contactId  path      string               true   "Contact id (24 hex characters)"
// @Param        body       body      patchContactRequest  false  "Fields to change (JSON requests)"
// @Param        photo      formData  file                 false  "Replacement photo (multipart requests)"
// @Success      200        {object}  contactEnvelope
// @Failure      400        {object}  errorResponse
// @Failure      401        {object}  errorResponse
// @Failure      404        {object}  errorResponse
// @Failure      500        {object}  errorResponse
// @Router       /contacts/{contactId} [patch]
func (h *ContactHandler) Patch(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req patchContactRequest
	if isMultipart(c) {
		req, err = patchRequestFromForm(c)
	} else {
		err = c.Bind(&req)
	}
	if err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	in := req.toInput()
	photo, closePhoto, err := readPhoto(c)
	if err != nil {
		return err
	}
	defer closePhoto()
	in.Photo = photo

	contact, err := h.service.UpdateContact(c.Request().Context(), c.Param("contactId"), userID, in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response{
		Status:  http.StatusOK,
		Message: "Successfully patched a contact!",
		Data:    toContactResponse(contact),
	})
}

// Delete handles DELETE /contacts/:contactId.
//
// @Summary      Delete a contact
// @Tags         contacts
// @Security     BearerAuth
// @Param        contactId  path  string  true  "Contact id (24 hex characters)"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /contacts/{contactId} [delete]
func (h *ContactHandler) Delete(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteContact(c.Request().Context(), c.Param("contactId"), userID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- multipart helpers ---

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

func createRequestFromForm(c echo.Context) (createContactRequest, error) {
	values, err := formValues(c)
	if err != nil {
		return createContactRequest{}, err
	}
	req := createContactRequest{
		Name:        first(values, "name"),
		PhoneNumber: first(values, "phoneNumber"),
		Email:       first(values, "email"),
		ContactType: first(values, "contactType"),
	}
	fav := formBool(values, "isFavourite")
	if fav.err != nil {
		return req, fav.err
	}
	if fav.value != nil {
		req.IsFavourite = *fav.value
	}
	return req, nil
}

// patchRequestFromForm sets a field only when its key is present in the
// form, so omitted fields stay untouched.
func patchRequestFromForm(c echo.Context) (patchContactRequest, error) {
	values, err := formValues(c)
	if err != nil {
		return patchContactRequest{}, err
	}
	req := patchContactRequest{
		Name:        present(values, "name"),
		PhoneNumber: present(values, "phoneNumber"),
		Email:       present(values, "email"),
		ContactType: present(values, "contactType"),
	}
	fav := formBool(values, "isFavourite")
	if fav.err != nil {
		return req, fav.err
	}
	req.IsFavourite = fav.value
	return req, nil
}

func formValues(c echo.Context) (map[string][]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	return form.Value, nil
}

func first(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func present(values map[string][]string, key string) *string {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := v[0]
	return &s
}

type optionalBool struct {
	value *bool
	err   error
}

func formBool(values map[string][]string, key string) optionalBool {
	raw := present(values, key)
	if raw == nil {
		return optionalBool{}
	}
	b, err := strconv.ParseBool(*raw)
	if err != nil {
		return optionalBool{err: fmt.Errorf("%w: %s must be true or false", domain.ErrValidation, key)}
	}
	return optionalBool{value: &b}
}

// readPhoto opens the optional photo part and checks by content sniffing
// that it is an image. The returned close func is always safe to call.
func readPhoto(c echo.Context) (*ports.Upload, func(), error) {
	noop := func() {}
	if !isMultipart(c) {
		return nil, noop, nil
	}

	fh, err := c.FormFile(photoField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, echo.NewHTTPError(http.StatusBadRequest, "invalid photo upload")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, noop, echo.NewHTTPError(http.StatusBadRequest, "invalid photo upload")
	}
	closeFile := func() { _ = f.Close() }

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		closeFile()
		return nil, noop, echo.NewHTTPError(http.StatusBadRequest, "invalid photo upload")
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		closeFile()
		return nil, noop, fmt.Errorf("%w: photo must be an image, got %s", domain.ErrValidation, mt.String())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		closeFile()
		return nil, noop, fmt.Errorf("%w: rewind photo: %v", domain.ErrStorage, err)
	}

	return &ports.Upload{
		Filename:    fh.Filename,
		ContentType: mt.String(),
		Size:        fh.Size,
		Body:        f,
	}, closeFile, nil
}
