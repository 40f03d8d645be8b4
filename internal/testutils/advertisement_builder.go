package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blesense/internal/device"
)

// FakeAdvertisement is a device.Advertisement with plain fields.
type FakeAdvertisement struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Rssi        int      `json:"rssi"`
	ServiceList []string `json:"services"`
	MfgData     []byte   `json:"manufacturerData"`
	IsConnect   bool     `json:"connectable"`
}

func (a *FakeAdvertisement) LocalName() string        { return a.Name }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.MfgData }
func (a *FakeAdvertisement) Services() []string       { return a.ServiceList }
func (a *FakeAdvertisement) Connectable() bool        { return a.IsConnect }
func (a *FakeAdvertisement) RSSI() int                { return a.Rssi }
func (a *FakeAdvertisement) Addr() string             { return a.Address }

// AdvertisementBuilder builds advertisements for scanner tests with a fluent API.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{IsConnect: true, Rssi: -60}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// WithServices adds service UUIDs; they are stored normalized, as a real adapter reports them.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceList = append(b.adv.ServiceList, device.NormalizeUUIDs(uuids)...)
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.MfgData = data
	return b
}

// WithPayload sets manufacturer data from a PayloadBuilder.
func (b *AdvertisementBuilder) WithPayload(p *PayloadBuilder) *AdvertisementBuilder {
	return b.WithManufacturerData(p.Build())
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnect = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...any) *AdvertisementBuilder {
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &b.adv); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}
	b.adv.ServiceList = device.NormalizeUUIDs(b.adv.ServiceList)
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	adv.ServiceList = append([]string(nil), b.adv.ServiceList...)
	return &adv
}

var _ device.Advertisement = (*FakeAdvertisement)(nil)
