package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/phonebook/contacts-api/internal/core/domain"
	"github.com/phonebook/contacts-api/internal/core/ports"
)

const collectionContacts = "contacts"

// Mongo server error codes the repository translates.
const (
	codeNamespaceExists          = 48
	codeDocumentValidationFailed = 121
)

// sortColumns maps every API sort field to its BSON field. Anything not in
// this table can never reach a query.
var sortColumns = map[domain.SortField]string{
	domain.SortByID:          "_id",
	domain.SortByName:        "name",
	domain.SortByPhoneNumber: "phone_number",
	domain.SortByEmail:       "email",
	domain.SortByIsFavourite: "is_favourite",
	domain.SortByContactType: "contact_type",
	domain.SortByCreatedAt:   "created_at",
	domain.SortByUpdatedAt:   "updated_at",
}

type contactDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID     primitive.ObjectID `bson:"owner_id"`
	Name        string             `bson:"name"`
	PhoneNumber string             `bson:"phone_number"`
	Email       string             `bson:"email,omitempty"`
	IsFavourite bool               `bson:"is_favourite"`
	ContactType string             `bson:"contact_type"`
	Photo       string             `bson:"photo,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d *contactDocument) toDomain() *domain.Contact {
	return &domain.Contact{
		ID:          d.ID.Hex(),
		OwnerID:     d.OwnerID.Hex(),
		Name:        d.Name,
		PhoneNumber: d.PhoneNumber,
		Email:       d.Email,
		IsFavourite: d.IsFavourite,
		ContactType: domain.ContactType(d.ContactType),
		Photo:       d.Photo,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// ContactRepository implements ports.ContactRepository using MongoDB.
type ContactRepository struct {
	db  *mongo.Database
	col *mongo.Collection
}

func NewContactRepository(db *mongo.Database) *ContactRepository {
	return &ContactRepository{db: db, col: db.Collection(collectionContacts)}
}

var _ ports.ContactRepository = (*ContactRepository)(nil)

// List runs the page query and the count concurrently with the same filter.
func (r *ContactRepository) List(ctx context.Context, ownerID string, q domain.ListQuery) ([]*domain.Contact, int64, error) {
	owner, err := parseOwnerID(ownerID)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := listFilter(owner, q.Filter)
	opts := options.Find().
		SetSort(listSort(q.SortBy, q.SortOrder)).
		SetSkip(q.Skip()).
		SetLimit(int64(q.PerPage))

	var (
		docs  []contactDocument
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := r.col.Find(gctx, filter, opts)
		if err != nil {
			return fmt.Errorf("find contacts: %w", err)
		}
		if err := cur.All(gctx, &docs); err != nil {
			return fmt.Errorf("decode contacts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := r.col.CountDocuments(gctx, filter)
		if err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	items := make([]*domain.Contact, len(docs))
	for i := range docs {
		items[i] = docs[i].toDomain()
	}
	return items, total, nil
}

func listFilter(owner primitive.ObjectID, f domain.ContactFilter) bson.M {
	filter := bson.M{"owner_id": owner}
	if f.ContactType != nil {
		filter["contact_type"] = string(*f.ContactType)
	}
	if f.IsFavourite != nil {
		filter["is_favourite"] = *f.IsFavourite
	}
	return filter
}

// listSort orders by the requested field with _id as a tie-breaker so that
// pages are stable.
func listSort(by domain.SortField, order domain.SortOrder) bson.D {
	column, ok := sortColumns[by]
	if !ok {
		column = "_id"
	}
	dir := 1
	if order == domain.SortDesc {
		dir = -1
	}
	sort := bson.D{{Key: column, Value: dir}}
	if column != "_id" {
		sort = append(sort, bson.E{Key: "_id", Value: dir})
	}
	return sort
}

// FindByID retrieves a contact by id, scoped to its owner.
func (r *ContactRepository) FindByID(ctx context.Context, id, ownerID string) (*domain.Contact, error) {
	filter, err := ownedFilter(id, ownerID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc contactDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrContactNotFound
		}
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return doc.toDomain(), nil
}

// Create validates and inserts a new contact document, then sets c.ID.
func (r *ContactRepository) Create(ctx context.Context, c *domain.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	owner, err := parseOwnerID(c.OwnerID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := contactDocument{
		OwnerID:     owner,
		Name:        c.Name,
		PhoneNumber: c.PhoneNumber,
		Email:       c.Email,
		IsFavourite: c.IsFavourite,
		ContactType: string(c.ContactType),
		Photo:       c.Photo,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		return translateWriteError("insert contact", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		c.ID = oid.Hex()
	}
	return nil
}

// Update $sets the touched fields of patch. opts.ReturnNew picks the post-
// or pre-update image of the document.
func (r *ContactRepository) Update(ctx context.Context, id, ownerID string, patch domain.ContactPatch, opts ports.UpdateOptions) (*domain.Contact, error) {
	filter, err := ownedFilter(id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	returnDoc := options.Before
	if opts.ReturnNew {
		returnDoc = options.After
	}

	var doc contactDocument
	err = r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": patchSet(patch)},
		options.FindOneAndUpdate().SetReturnDocument(returnDoc),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrContactNotFound
		}
		return nil, translateWriteError("update contact", err)
	}
	return doc.toDomain(), nil
}

func patchSet(p domain.ContactPatch) bson.M {
	set := bson.M{"updated_at": time.Now().UTC()}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.PhoneNumber != nil {
		set["phone_number"] = *p.PhoneNumber
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.IsFavourite != nil {
		set["is_favourite"] = *p.IsFavourite
	}
	if p.ContactType != nil {
		set["contact_type"] = string(*p.ContactType)
	}
	if p.Photo != nil {
		set["photo"] = *p.Photo
	}
	return set
}

// Delete removes a contact scoped to its owner and returns the removed document.
func (r *ContactRepository) Delete(ctx context.Context, id, ownerID string) (*domain.Contact, error) {
	filter, err := ownedFilter(id, ownerID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc contactDocument
	if err := r.col.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrContactNotFound
		}
		return nil, fmt.Errorf("delete contact: %w", err)
	}
	return doc.toDomain(), nil
}

// EnsureIndexes creates the indexes used by owner-scoped listings.
func (r *ContactRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "contact_type", Value: 1}, {Key: "is_favourite", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

// EnsureSchema installs a $jsonSchema validator on the contacts collection
// so that writes bypassing this repository still cannot store an unknown
// contact type or drop a required field.
func (r *ContactRepository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	validator := bson.M{"$jsonSchema": contactSchema()}

	err := r.db.CreateCollection(ctx, collectionContacts, options.CreateCollection().SetValidator(validator))
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Code != codeNamespaceExists {
		return fmt.Errorf("create contacts collection: %w", err)
	}

	return r.db.RunCommand(ctx, bson.D{
		{Key: "collMod", Value: collectionContacts},
		{Key: "validator", Value: validator},
	}).Err()
}

func contactSchema() bson.M {
	types := make(bson.A, len(domain.ContactTypes))
	for i, t := range domain.ContactTypes {
		types[i] = string(t)
	}
	return bson.M{
		"bsonType": "object",
		"required": bson.A{"owner_id", "name", "phone_number", "contact_type", "is_favourite"},
		"properties": bson.M{
			"owner_id":     bson.M{"bsonType": "objectId"},
			"name":         bson.M{"bsonType": "string", "minLength": 1},
			"phone_number": bson.M{"bsonType": "string", "minLength": 1},
			"email":        bson.M{"bsonType": "string"},
			"is_favourite": bson.M{"bsonType": "bool"},
			"contact_type": bson.M{"enum": types},
			"photo":        bson.M{"bsonType": "string"},
		},
	}
}

// ownedFilter builds the {_id, owner_id} filter every single-document
// operation uses.
func ownedFilter(id, ownerID string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	owner, err := parseOwnerID(ownerID)
	if err != nil {
		return nil, err
	}
	return bson.M{"_id": oid, "owner_id": owner}, nil
}

func parseOwnerID(ownerID string) (primitive.ObjectID, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: malformed owner id", domain.ErrUnauthenticated)
	}
	return owner, nil
}

// translateWriteError maps server-side schema rejections to ErrValidation.
func translateWriteError(op string, err error) error {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == codeDocumentValidationFailed {
				return fmt.Errorf("%w: %s", domain.ErrValidation, e.Message)
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == codeDocumentValidationFailed {
		return fmt.Errorf("%w: %s", domain.ErrValidation, ce.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
