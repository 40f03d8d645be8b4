package advert_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blesense/internal/advert"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/reading"
	"github.com/srg/blesense/internal/testutils"
)

const sensorAddr = "a4:c1:38:00:11:22"

func decodeAll(d *advert.Decoder, data []byte, src device.Identity) []reading.Reading {
	var out []reading.Reading
	for r := range d.Decode(data, src) {
		out = append(out, r)
	}
	return out
}

func TestDecoder_Decode(t *testing.T) {
	d := advert.NewDecoder(nil)
	src := device.NewIdentity("", sensorAddr, "Sensor")

	data := testutils.NewPayloadBuilder(sensorAddr).
		WithTemperature(21.5).
		WithHumidity(48).
		WithBattery(77).
		Build()

	got := decodeAll(d, data, src)
	require.Len(t, got, 3)

	assert.Equal(t, reading.Temperature, got[0].Name)
	assert.Equal(t, 21.5, got[0].Value)
	assert.Equal(t, "°C", got[0].Unit)
	assert.Equal(t, reading.Humidity, got[1].Name)
	assert.Equal(t, 48.0, got[1].Value)
	assert.Equal(t, reading.Battery, got[2].Name)
	assert.Equal(t, 77.0, got[2].Value)

	for _, r := range got {
		assert.Equal(t, src, r.Device, "reading MUST carry the advertising device")
		assert.Equal(t, got[0].Time, r.Time, "readings of one advertisement MUST share a timestamp")
		assert.False(t, r.Time.IsZero())
	}
}

func TestDecoder_Rejects(t *testing.T) {
	d := advert.NewDecoder(nil)
	src := device.NewIdentity("", sensorAddr, "")

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "too short",
			data: testutils.NewPayloadBuilder(sensorAddr).Build(),
		},
		{
			name: "foreign manufacturer",
			data: testutils.NewPayloadBuilder(sensorAddr).WithManufacturerID(0x004c).WithBattery(50).Build(),
		},
		{
			name: "address of another device",
			data: testutils.NewPayloadBuilder("a4:c1:38:00:11:23").WithBattery(50).Build(),
		},
		{
			name: "nil",
			data: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, d.Accepts(tt.data, src))
			assert.Empty(t, decodeAll(d, tt.data, src))
		})
	}
}

func TestDecoder_AcceptsMalformedRecords(t *testing.T) {
	d := advert.NewDecoder(nil)
	src := device.NewIdentity("", sensorAddr, "")

	data := testutils.NewPayloadBuilder(sensorAddr).WithRaw(0x01).Build()

	assert.True(t, d.Accepts(data, src), "header checks MUST pass for a valid header")
	assert.Empty(t, decodeAll(d, data, src), "a lone type byte MUST yield nothing")
}

func TestDecoder_StopsEarly(t *testing.T) {
	d := advert.NewDecoder(nil)
	src := device.NewIdentity("", sensorAddr, "")
	data := testutils.NewPayloadBuilder(sensorAddr).WithBattery(1).WithCO2(400).WithTemperature(5).Build()

	var names []string
	for r := range d.Decode(data, src) {
		names = append(names, r.Name)
		if len(names) == 2 {
			break
		}
	}
	assert.Equal(t, []string{reading.Battery, reading.CO2}, names)
}

func TestEmbeddedAddress(t *testing.T) {
	data := []byte{0x12, 0x0a, 0x22, 0x11, 0x00, 0x38, 0xc1, 0xa4}
	assert.Equal(t, "a4c138001122", advert.EmbeddedAddress(data))

	assert.Equal(t, "00000000000a", advert.EmbeddedAddress([]byte{0, 0, 0x0a, 0, 0, 0, 0, 0}), "MUST keep leading zeros")
	assert.Equal(t, "", advert.EmbeddedAddress([]byte{0x12, 0x0a, 0x01}))
}
