package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/device"
)

var propertyMap = []struct {
	ble ble.Property
	dev device.Property
}{
	{ble.CharRead, device.PropRead},
	{ble.CharWrite, device.PropWrite},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
}

// toProperties converts ble.Property bit flags; broadcast, signed-write and extended bits are dropped.
func toProperties(p ble.Property) device.Property {
	var out device.Property
	for _, m := range propertyMap {
		if p&m.ble != 0 {
			out |= m.dev
		}
	}
	return out
}

// useIndication reports whether a subscription must use indications (no plain notify support).
func useIndication(p device.Property) bool {
	return p&device.PropIndicate != 0 && p&device.PropNotify == 0
}

// writeWithoutResponse reports whether a write must go without response (no acknowledged write support).
func writeWithoutResponse(p device.Property) bool {
	return p&device.PropWriteWithoutResponse != 0 && p&device.PropWrite == 0
}
