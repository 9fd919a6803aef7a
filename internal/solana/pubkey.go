package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of a Solana public key in bytes.
const PublicKeyLength = 32

// MaxSeedLength is the maximum length of a single PDA seed.
const MaxSeedLength = 32

// pdaMarker is appended to PDA hash input.
const pdaMarker = "ProgramDerivedAddress"

var (
	// ErrInvalidPublicKey is returned when a string is not a 32-byte base58 key.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrNoViableBump is returned when no bump seed yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// PublicKey is a 32-byte ed25519 public key or program derived address.
type PublicKey [PublicKeyLength]byte

// ParsePublicKey decodes a base58 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != PublicKeyLength {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 encoding of the key.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsOnCurve reports whether the key is a valid ed25519 point.
// Wallet and program addresses are on-curve; PDAs are not.
func (pk PublicKey) IsOnCurve() bool {
	return isOnCurve(pk[:])
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// CreateProgramAddress derives the address for seeds (bump included) or
// fails if the result lands on the curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	var pk PublicKey

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return pk, fmt.Errorf("seed length %d exceeds %d", len(seed), MaxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	sum := h.Sum(nil)
	if isOnCurve(sum) {
		return pk, errors.New("derived address is on curve")
	}
	copy(pk[:], sum)
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the
// first off-curve program derived address with its bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return PublicKey{}, 0, fmt.Errorf("seed length %d exceeds %d", len(seed), MaxSeedLength)
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}
