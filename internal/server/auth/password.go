package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and checks passwords with bcrypt.
type Hasher struct {
	cost int
	// dummy is compared against when the account does not exist, so a
	// missing email costs as much as a wrong password.
	dummy []byte
}

// NewHasher builds a Hasher; cost should already be clamped (see
// config.Config.HashCost).
func NewHasher(cost int) *Hasher {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("contactkeeper-timing-equalizer"), cost)
	return &Hasher{cost: cost, dummy: dummy}
}

func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Compare reports whether password matches hash. bcrypt compares in
// constant time.
func (h *Hasher) Compare(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CompareDummy burns the same work as Compare and always fails.
func (h *Hasher) CompareDummy(password string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	return false
}
