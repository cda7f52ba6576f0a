package security

import "golang.org/x/crypto/bcrypt"

// Cost is the bcrypt work factor used for every stored password.
const Cost = 12

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

type Hasher struct {
	cost int
}

func NewHasher() *Hasher {
	return &Hasher{cost: Cost}
}

// NewHasherWithCost is meant for tests that cannot afford cost 12 per hash.
func NewHasherWithCost(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	return &Hasher{cost: cost}
}

// Hash hashes a plain text password with bcrypt. Every call uses a fresh salt.
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify reports whether digest was produced from plain. A malformed digest never matches.
func (h *Hasher) Verify(plain, digest string) bool {
	return CheckPassword(digest, plain) == nil
}

// helper that compares a bcrypt hash with a plaintext password.

func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
