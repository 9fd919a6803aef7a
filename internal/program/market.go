// Package program reads FoundersNet market accounts from the Solana program.
package program

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"foundersnet-telemetry/internal/solana"
)

// DiscriminatorLength is the size of the Anchor account discriminator.
const DiscriminatorLength = 8

// maxStringLength bounds Borsh string fields so a corrupt length prefix
// cannot trigger a huge allocation.
const maxStringLength = 4096

// MarketDiscriminator prefixes every Market account.
var MarketDiscriminator = AccountDiscriminator("Market")

var (
	// ErrShortData is returned when account data ends before a field.
	ErrShortData = errors.New("account data too short")
	// ErrDiscriminator is returned when the account is not a Market.
	ErrDiscriminator = errors.New("account discriminator mismatch")
)

// AccountDiscriminator returns sha256("account:<name>")[:8].
func AccountDiscriminator(name string) [DiscriminatorLength]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorLength]byte
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// RawMarket is a Market account as stored on chain, with enum fields left
// in their integer encoding.
type RawMarket struct {
	PublicKey      string
	Creator        solana.PublicKey
	Resolver       solana.PublicKey
	Title          string
	Description    string
	Category       string
	StartupName    string
	EventType      uint8
	ResolutionDate int64
	YesPool        uint64
	NoPool         uint64
	TotalVolume    uint64
	Status         uint8
	Outcome        *uint8 // Borsh Option<u8>
	CreatedAt      int64
	Bump           uint8
}

// DecodeMarket decodes Borsh-encoded Market account data.
func DecodeMarket(pubkey string, data []byte) (RawMarket, error) {
	if len(data) < DiscriminatorLength {
		return RawMarket{}, fmt.Errorf("decode market %s: %w", pubkey, ErrShortData)
	}
	if [DiscriminatorLength]byte(data[:DiscriminatorLength]) != MarketDiscriminator {
		return RawMarket{}, fmt.Errorf("decode market %s: %w", pubkey, ErrDiscriminator)
	}

	d := &decoder{data: data, off: DiscriminatorLength}
	m := RawMarket{PublicKey: pubkey}

	m.Creator = d.pubkey()
	m.Resolver = d.pubkey()
	m.Title = d.string()
	m.Description = d.string()
	m.Category = d.string()
	m.StartupName = d.string()
	m.EventType = d.u8()
	m.ResolutionDate = d.i64()
	m.YesPool = d.u64()
	m.NoPool = d.u64()
	m.TotalVolume = d.u64()
	m.Status = d.u8()
	m.Outcome = d.optionU8()
	m.CreatedAt = d.i64()
	m.Bump = d.u8()

	if d.err != nil {
		return RawMarket{}, fmt.Errorf("decode market %s: %w", pubkey, d.err)
	}
	return m, nil
}

// decoder reads little-endian Borsh fields. The first failure sticks and
// later reads return zero values.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.data) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortData, n, d.off, len(d.data))
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) i64() int64 {
	return int64(d.u64())
}

func (d *decoder) pubkey() solana.PublicKey {
	var pk solana.PublicKey
	copy(pk[:], d.take(solana.PublicKeyLength))
	return pk
}

func (d *decoder) string() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	if n > maxStringLength {
		d.err = fmt.Errorf("string length %d exceeds %d", n, maxStringLength)
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) optionU8() *uint8 {
	switch tag := d.u8(); {
	case d.err != nil:
		return nil
	case tag == 0:
		return nil
	case tag == 1:
		v := d.u8()
		if d.err != nil {
			return nil
		}
		return &v
	default:
		d.err = fmt.Errorf("invalid option tag %d at offset %d", tag, d.off-1)
		return nil
	}
}
