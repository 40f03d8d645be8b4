// Package advert validates vendor advertisements and decodes the readings they carry.
package advert

import (
	"encoding/binary"
	"fmt"
	"iter"
	"time"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/reading"
)

// ManufacturerID is the company identifier carried in the first two bytes of the
// manufacturer data of every sensor of this family.
const ManufacturerID uint16 = 0x0a12

const (
	manufacturerTagLen = 2
	addressLen         = 6
	headerLen          = manufacturerTagLen + addressLen

	// MinPayloadLen is the smallest advertisement that can carry a reading.
	MinPayloadLen = headerLen + 1
)

// Decoder validates raw advertisement payloads and hands the reading section to a PayloadDecoder.
type Decoder struct {
	manufacturerID uint16
	payload        reading.PayloadDecoder
	now            func() time.Time
}

// NewDecoder creates a Decoder. A nil payload decoder selects reading.NewTLVDecoder.
func NewDecoder(payload reading.PayloadDecoder) *Decoder {
	if payload == nil {
		payload = reading.NewTLVDecoder()
	}
	return &Decoder{
		manufacturerID: ManufacturerID,
		payload:        payload,
		now:            time.Now,
	}
}

// Accepts reports whether data passes the length, manufacturer and self-address checks for source.
func (d *Decoder) Accepts(data []byte, source device.Identity) bool {
	if len(data) < MinPayloadLen {
		return false
	}
	if binary.LittleEndian.Uint16(data[0:manufacturerTagLen]) != d.manufacturerID {
		return false
	}
	return EmbeddedAddress(data) == source.Address
}

// Decode lazily yields the readings carried by data. Malformed or foreign payloads yield nothing.
func (d *Decoder) Decode(data []byte, source device.Identity) iter.Seq[reading.Reading] {
	return func(yield func(reading.Reading) bool) {
		if !d.Accepts(data, source) {
			return
		}
		ts := d.now()
		for name, value := range d.payload.Decode(data[headerLen:]) {
			r := reading.Reading{
				Name:   name,
				Value:  value,
				Unit:   d.payload.Unit(name),
				Device: source,
				Time:   ts,
			}
			if !yield(r) {
				return
			}
		}
	}
}

// EmbeddedAddress renders bytes [2,8) of data, read as a little-endian integer, as 12 lowercase
// hex digits. Returns "" if data is too short.
func EmbeddedAddress(data []byte) string {
	if len(data) < headerLen {
		return ""
	}
	var v uint64
	for i := addressLen - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[manufacturerTagLen+i])
	}
	return fmt.Sprintf("%012x", v)
}
