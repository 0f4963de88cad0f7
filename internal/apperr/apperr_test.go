package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTaken = New(Conflict, "Username is already taken")

func TestKindMatching(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", errTaken)

	assert.ErrorIs(t, wrapped, Conflict)
	assert.ErrorIs(t, wrapped, errTaken)
	assert.NotErrorIs(t, wrapped, NotFound)
	assert.Equal(t, Conflict, KindOf(wrapped))
}

func TestMessageHidesUncategorized(t *testing.T) {
	assert.Equal(t, "Username is already taken", Message(fmt.Errorf("x: %w", errTaken), "oops"))
	assert.Equal(t, "oops", Message(errors.New("pq: connection refused"), "oops"))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
