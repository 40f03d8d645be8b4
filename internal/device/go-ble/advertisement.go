package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface.
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper.
func NewBLEAdvertisement(adv ble.Advertisement) *BLEAdvertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }

func (a *BLEAdvertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

// Services returns the advertised service UUIDs, including overflow ones, normalized.
func (a *BLEAdvertisement) Services() []string {
	var result []string
	for _, group := range [][]ble.UUID{a.adv.Services(), a.adv.OverflowService()} {
		for _, svc := range group {
			result = append(result, device.NormalizeUUID(svc.String()))
		}
	}
	return result
}

// advertises reports whether any advertised service is in wanted (normalized UUIDs).
// An empty wanted set matches everything.
func advertises(adv device.Advertisement, wanted map[string]struct{}) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, svc := range adv.Services() {
		if _, ok := wanted[svc]; ok {
			return true
		}
	}
	return false
}

var _ device.Advertisement = (*BLEAdvertisement)(nil)
