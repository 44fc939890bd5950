package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash)

	assert.True(t, h.Compare(hash, "pw1"))
	assert.False(t, h.Compare(hash, "pw2"))
	assert.False(t, h.Compare("not-a-hash", "pw1"))
}

func TestHasher_SaltsEveryHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasher_CompareDummyAlwaysFails(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	assert.False(t, h.CompareDummy("contactkeeper-timing-equalizer"))
}

func TestHasher_RejectsOverlongPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	_, err := h.Hash(string(make([]byte, 73)))
	assert.Error(t, err)
}
