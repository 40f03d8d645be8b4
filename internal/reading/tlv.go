package reading

import (
	"encoding/binary"
	"iter"
)

// PayloadDecoder turns the vendor payload of an advertisement into (name, value) pairs.
// Implementations must not panic on malformed input; they simply yield fewer pairs.
type PayloadDecoder interface {
	Decode(payload []byte) iter.Seq2[string, float64]
	Unit(name string) string
}

// Kind describes one record type of the TLV payload format.
type Kind struct {
	Name    string
	Unit    string
	Size    int
	Signed  bool
	Divisor float64
}

// Record types carried in the sensor payload.
const (
	TypeTemperature byte = 0x01
	TypeHumidity    byte = 0x02
	TypeBattery     byte = 0x03
	TypePressure    byte = 0x04
	TypeCO2         byte = 0x05
	TypePM25        byte = 0x06
	TypeIlluminance byte = 0x07
)

// Reading names produced by the default decoder.
const (
	Temperature = "temperature"
	Humidity    = "humidity"
	Battery     = "battery"
	Pressure    = "pressure"
	CO2         = "co2"
	PM25        = "pm25"
	Illuminance = "illuminance"
)

var defaultKinds = map[byte]Kind{
	TypeTemperature: {Name: Temperature, Unit: "°C", Size: 2, Signed: true, Divisor: 10},
	TypeHumidity:    {Name: Humidity, Unit: "%", Size: 2, Divisor: 10},
	TypeBattery:     {Name: Battery, Unit: "%", Size: 1, Divisor: 1},
	TypePressure:    {Name: Pressure, Unit: "hPa", Size: 2, Divisor: 10},
	TypeCO2:         {Name: CO2, Unit: "ppm", Size: 2, Divisor: 1},
	TypePM25:        {Name: PM25, Unit: "µg/m³", Size: 2, Divisor: 1},
	TypeIlluminance: {Name: Illuminance, Unit: "lx", Size: 2, Divisor: 1},
}

// TLVDecoder decodes payloads made of [type:1][len:1][value:len] records, little endian.
// Unknown types and records whose length does not match the known size are skipped;
// a truncated record ends the payload.
type TLVDecoder struct {
	kinds map[byte]Kind
	units map[string]string
}

// NewTLVDecoder creates a decoder for the built-in record types.
func NewTLVDecoder() *TLVDecoder {
	d := &TLVDecoder{kinds: defaultKinds, units: make(map[string]string, len(defaultKinds))}
	for _, k := range defaultKinds {
		d.units[k.Name] = k.Unit
	}
	return d
}

// KnownNames returns the reading names the decoder can produce.
func (d *TLVDecoder) KnownNames() []string {
	names := make([]string, 0, len(d.kinds))
	for t := TypeTemperature; t <= TypeIlluminance; t++ {
		if k, ok := d.kinds[t]; ok {
			names = append(names, k.Name)
		}
	}
	return names
}

// Unit returns the unit of the named reading, or "" if unknown.
func (d *TLVDecoder) Unit(name string) string {
	return d.units[name]
}

// Decode lazily yields the readings packed into payload.
func (d *TLVDecoder) Decode(payload []byte) iter.Seq2[string, float64] {
	return func(yield func(string, float64) bool) {
		for len(payload) >= 2 {
			typ, size := payload[0], int(payload[1])
			if len(payload) < 2+size {
				return
			}
			value := payload[2 : 2+size]
			payload = payload[2+size:]

			kind, ok := d.kinds[typ]
			if !ok || kind.Size != size {
				continue
			}
			if !yield(kind.Name, kind.decode(value)) {
				return
			}
		}
	}
}

func (k Kind) decode(b []byte) float64 {
	var raw float64
	switch k.Size {
	case 1:
		if k.Signed {
			raw = float64(int8(b[0]))
		} else {
			raw = float64(b[0])
		}
	case 2:
		v := binary.LittleEndian.Uint16(b)
		if k.Signed {
			raw = float64(int16(v))
		} else {
			raw = float64(v)
		}
	}
	return raw / k.Divisor
}
