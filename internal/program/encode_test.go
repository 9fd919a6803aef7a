package program

import "encoding/binary"

// encodeMarket is the inverse of DecodeMarket. PublicKey is not encoded.
func encodeMarket(m RawMarket) []byte {
	e := &encoder{}
	e.buf = append(e.buf, MarketDiscriminator[:]...)
	e.buf = append(e.buf, m.Creator[:]...)
	e.buf = append(e.buf, m.Resolver[:]...)
	e.string(m.Title)
	e.string(m.Description)
	e.string(m.Category)
	e.string(m.StartupName)
	e.u8(m.EventType)
	e.u64(uint64(m.ResolutionDate))
	e.u64(m.YesPool)
	e.u64(m.NoPool)
	e.u64(m.TotalVolume)
	e.u8(m.Status)
	if m.Outcome == nil {
		e.u8(0)
	} else {
		e.u8(1)
		e.u8(*m.Outcome)
	}
	e.u64(uint64(m.CreatedAt))
	e.u8(m.Bump)
	return e.buf
}

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) string(s string) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}
