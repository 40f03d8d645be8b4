package testutils

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/srg/blesense/internal/advert"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/reading"
)

// PayloadBuilder builds vendor manufacturer data:
// [manufacturer id LE:2][address LE:6][TLV records...]
type PayloadBuilder struct {
	manufacturerID uint16
	address        uint64
	records        []byte
}

// NewPayloadBuilder creates a payload that self-identifies as address.
func NewPayloadBuilder(address string) *PayloadBuilder {
	return (&PayloadBuilder{manufacturerID: advert.ManufacturerID}).WithAddress(address)
}

func (b *PayloadBuilder) WithManufacturerID(id uint16) *PayloadBuilder {
	b.manufacturerID = id
	return b
}

// WithAddress sets the embedded address; panics if it is not 12 hex digits once normalized.
func (b *PayloadBuilder) WithAddress(address string) *PayloadBuilder {
	v, err := strconv.ParseUint(device.NormalizeAddress(address), 16, 48)
	if err != nil {
		panic("PayloadBuilder: invalid address " + address)
	}
	b.address = v
	return b
}

// WithRecord appends a raw TLV record.
func (b *PayloadBuilder) WithRecord(typ byte, value []byte) *PayloadBuilder {
	b.records = append(b.records, typ, byte(len(value)))
	b.records = append(b.records, value...)
	return b
}

// WithRaw appends bytes as-is.
func (b *PayloadBuilder) WithRaw(data ...byte) *PayloadBuilder {
	b.records = append(b.records, data...)
	return b
}

func (b *PayloadBuilder) WithTemperature(celsius float64) *PayloadBuilder {
	return b.WithRecord(reading.TypeTemperature, le16(uint16(int16(math.Round(celsius*10)))))
}

func (b *PayloadBuilder) WithHumidity(percent float64) *PayloadBuilder {
	return b.WithRecord(reading.TypeHumidity, le16(uint16(math.Round(percent*10))))
}

func (b *PayloadBuilder) WithBattery(percent uint8) *PayloadBuilder {
	return b.WithRecord(reading.TypeBattery, []byte{percent})
}

func (b *PayloadBuilder) WithCO2(ppm uint16) *PayloadBuilder {
	return b.WithRecord(reading.TypeCO2, le16(ppm))
}

// Build returns the encoded manufacturer data.
func (b *PayloadBuilder) Build() []byte {
	out := make([]byte, 8, 8+len(b.records))
	binary.LittleEndian.PutUint16(out[0:2], b.manufacturerID)
	for i := 0; i < 6; i++ {
		out[2+i] = byte(b.address >> (8 * i))
	}
	return append(out, b.records...)
}

func le16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}
