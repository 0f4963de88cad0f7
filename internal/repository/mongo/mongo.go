// Package mongo stores each account as one document with its inbox embedded.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
)

const (
	collectionName = "accounts"
	usernameIndex  = "username_unique"
	emailIndex     = "email_unique"
)

type messageDoc struct {
	ID        string    `bson:"_id"`
	Content   string    `bson:"content"`
	IsRead    bool      `bson:"is_read"`
	CreatedAt time.Time `bson:"created_at"`
}

type accountDoc struct {
	ID                 string       `bson:"_id"`
	Username           string       `bson:"username"`
	Email              string       `bson:"email"`
	PasswordHash       []byte       `bson:"password_hash"`
	Verified           bool         `bson:"verified"`
	AcceptingMessages  bool         `bson:"accepting_messages"`
	VerificationCode   string       `bson:"verification_code,omitempty"`
	VerificationExpiry time.Time    `bson:"verification_expiry,omitempty"`
	Messages           []messageDoc `bson:"messages"`
	CreatedAt          time.Time    `bson:"created_at"`
	UpdatedAt          time.Time    `bson:"updated_at"`
}

// Repository implements repository.AccountRepository on MongoDB.
type Repository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ repository.AccountRepository = (*Repository)(nil)

// Open connects to uri, selects database and ensures the unique indexes.
func Open(ctx context.Context, uri, database string) (*Repository, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	repo := &Repository{client: client, coll: client.Database(database).Collection(collectionName)}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

func (r *Repository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName(usernameIndex)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndex)},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, filter bson.D) (*domain.Account, error) {
	var doc accountDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// FindByUsernameOrEmail matches identifier against username or email.
func (r *Repository) FindByUsernameOrEmail(ctx context.Context, identifier string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: identifier}},
		bson.D{{Key: "email", Value: identifier}},
	}}})
}

// FindByUsername fetches an account by username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

// FindByEmail fetches an account by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// FindByID fetches an account by identifier.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// FindVerifiedByUsername fetches a verified account by username.
func (r *Repository) FindVerifiedByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}, {Key: "verified", Value: true}})
}

// FindVerifiedByEmail fetches a verified account by email.
func (r *Repository) FindVerifiedByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}, {Key: "verified", Value: true}})
}

// Insert creates an account document.
func (r *Repository) Insert(ctx context.Context, account *domain.Account) error {
	doc := fromDomain(account)
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return duplicateKeyError(err)
	}
	return nil
}

// duplicateKeyError maps a unique index violation to the repository error for
// that index. Other errors pass through.
func duplicateKeyError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if violatedIndex(e.Message) == emailIndex {
				return repository.ErrDuplicateEmail
			}
		}
	}
	return repository.ErrDuplicateUsername
}

// violatedIndex reads the index name out of an E11000 message such as
// "E11000 duplicate key error collection: db.accounts index: email_unique dup key: {...}".
func violatedIndex(message string) string {
	_, rest, ok := strings.Cut(message, " index: ")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, " ")
	return name
}

func (r *Repository) updateOne(ctx context.Context, filter, update bson.D) (*mongo.UpdateResult, error) {
	return r.coll.UpdateOne(ctx, filter, update)
}

// UpdateRegistration overwrites credentials of an unverified account.
func (r *Repository) UpdateRegistration(ctx context.Context, id string, passwordHash []byte, code string, expiry time.Time) error {
	res, err := r.updateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "verified", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "verification_code", Value: code},
			{Key: "verification_expiry", Value: expiry},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkVerified verifies the account when its stored code still matches.
func (r *Repository) MarkVerified(ctx context.Context, id, code string) error {
	res, err := r.updateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "verification_code", Value: code}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "verified", Value: true}, {Key: "updated_at", Value: time.Now().UTC()}}},
			{Key: "$unset", Value: bson.D{{Key: "verification_code", Value: ""}}},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrCodeMismatch
	}
	return nil
}

// SetAccepting stores the accepting flag.
func (r *Repository) SetAccepting(ctx context.Context, id string, accepting bool) error {
	res, err := r.updateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "accepting_messages", Value: accepting},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendMessage pushes the message with a filter on accepting_messages, so the
// flag check and the append are one document write.
func (r *Repository) AppendMessage(ctx context.Context, id string, message domain.Message) error {
	res, err := r.updateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "accepting_messages", Value: true}},
		bson.D{{Key: "$push", Value: bson.D{{Key: "messages", Value: messageDoc{
			ID:        message.ID,
			Content:   message.Content,
			IsRead:    message.IsRead,
			CreatedAt: message.CreatedAt,
		}}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrNotAccepting
	}
	return nil
}

// RemoveMessage pulls one message from the owner's inbox.
func (r *Repository) RemoveMessage(ctx context.Context, id, messageID string) (bool, error) {
	res, err := r.updateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "messages", Value: bson.D{{Key: "_id", Value: messageID}}}}}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, repository.ErrNotFound
	}
	return res.ModifiedCount > 0, nil
}

// ListMessages returns the embedded inbox in arrival order.
func (r *Repository) ListMessages(ctx context.Context, id string) ([]domain.Message, error) {
	acc, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return acc.Messages, nil
}

// Delete removes the account document.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks connectivity to the primary.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func fromDomain(a *domain.Account) accountDoc {
	doc := accountDoc{
		ID:                 a.ID,
		Username:           a.Username,
		Email:              a.Email,
		PasswordHash:       a.PasswordHash,
		Verified:           a.Verified,
		AcceptingMessages:  a.AcceptingMessages,
		VerificationCode:   a.VerificationCode,
		VerificationExpiry: a.VerificationExpiry,
		Messages:           make([]messageDoc, 0, len(a.Messages)),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	for _, m := range a.Messages {
		doc.Messages = append(doc.Messages, messageDoc{ID: m.ID, Content: m.Content, IsRead: m.IsRead, CreatedAt: m.CreatedAt})
	}
	return doc
}

func (d accountDoc) toDomain() *domain.Account {
	acc := &domain.Account{
		ID:                 d.ID,
		Username:           d.Username,
		Email:              d.Email,
		PasswordHash:       d.PasswordHash,
		Verified:           d.Verified,
		AcceptingMessages:  d.AcceptingMessages,
		VerificationCode:   d.VerificationCode,
		VerificationExpiry: d.VerificationExpiry,
		Messages:           make([]domain.Message, 0, len(d.Messages)),
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	for _, m := range d.Messages {
		acc.Messages = append(acc.Messages, domain.Message{ID: m.ID, Content: m.Content, IsRead: m.IsRead, CreatedAt: m.CreatedAt})
	}
	return acc
}
