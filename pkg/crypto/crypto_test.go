package crypto

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericCodeRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := NumericCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, codeMin)
		assert.LessOrEqual(t, n, codeMax)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", string(hash))

	assert.NoError(t, ComparePassword(hash, "secret1"))
	assert.ErrorIs(t, ComparePassword(hash, "secret2"), ErrPasswordMismatch)
}

func TestSealOpen(t *testing.T) {
	sealed, err := Seal("key", "state-value")
	require.NoError(t, err)

	plain, err := Open("key", sealed)
	require.NoError(t, err)
	assert.Equal(t, "state-value", plain)

	_, err = Open("other-key", sealed)
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = Open("key", "%%%")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestRandomTokenLength(t *testing.T) {
	token, err := RandomToken(32)
	require.NoError(t, err)
	assert.Len(t, token, 43)
}
