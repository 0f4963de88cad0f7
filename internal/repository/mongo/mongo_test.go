package mongo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/anonify/anonify/internal/repository"
)

func duplicateOn(index, field, value string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: "E11000 duplicate key error collection: anonify.accounts index: " + index + " dup key: { " + field + ": \"" + value + "\" }",
	}}}
}

func TestDuplicateKeyErrorUsesIndexName(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"email", duplicateOn(emailIndex, "email", "a@x.com"), repository.ErrDuplicateEmail},
		{"username", duplicateOn(usernameIndex, "username", "alice"), repository.ErrDuplicateUsername},
		{"username mentioning email", duplicateOn(usernameIndex, "username", "myemail"), repository.ErrDuplicateUsername},
		{"username named after the email index", duplicateOn(usernameIndex, "username", "email_unique"), repository.ErrDuplicateUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, duplicateKeyError(tt.err), tt.want)
		})
	}
}

func TestDuplicateKeyErrorPassesOtherErrors(t *testing.T) {
	other := errors.New("connection reset")
	assert.Same(t, other, duplicateKeyError(other))

	writeErr := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 121, Message: "Document failed validation"}}}
	assert.Equal(t, writeErr, duplicateKeyError(writeErr))
}

func TestViolatedIndex(t *testing.T) {
	assert.Equal(t, "email_unique", violatedIndex("E11000 duplicate key error collection: db.accounts index: email_unique dup key: { email: \"x\" }"))
	assert.Empty(t, violatedIndex("something else"))
}
