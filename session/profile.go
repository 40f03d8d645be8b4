package session

// Profile names the GATT service and the four characteristic roles used by a session.
type Profile struct {
	Service        string
	SettingsWrite  string
	SettingsNotify string
	DataWrite      string
	DataNotify     string
}

// DefaultProfile is the GATT layout of the sensor.
var DefaultProfile = Profile{
	Service:        "7a2a0001-5e8c-4f1d-9a3b-0c6f2b1d8e40",
	SettingsWrite:  "7a2a0002-5e8c-4f1d-9a3b-0c6f2b1d8e40",
	SettingsNotify: "7a2a0003-5e8c-4f1d-9a3b-0c6f2b1d8e40",
	DataWrite:      "7a2a0004-5e8c-4f1d-9a3b-0c6f2b1d8e40",
	DataNotify:     "7a2a0005-5e8c-4f1d-9a3b-0c6f2b1d8e40",
}

// InitResponseCode is the response code acknowledging every handshake command.
const InitResponseCode byte = 0x01

// initSequence is sent on the settings channel right after subscribing.
// What these commands do is undocumented; they are replayed byte-for-byte and must not be altered.
var initSequence = [3][]byte{
	{0x01, 0x00, 0x00, 0x00, 0x00},
	{0x0b, 0x01},
	{0x0d, 0x00, 0x01},
}

// InitSequence returns a copy of the handshake commands in the order they are sent.
func InitSequence() [][]byte {
	out := make([][]byte, len(initSequence))
	for i, cmd := range initSequence {
		out[i] = append([]byte(nil), cmd...)
	}
	return out
}
