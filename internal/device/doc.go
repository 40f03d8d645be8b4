// Package device defines the radio capability consumed by the rest of blesense.
//
// It provides:
//   - the Adapter and Link interfaces (power state, scanning, GATT access)
//   - device identities with address normalization
//   - scoped listener subscriptions that are released exactly once
//   - the typed errors shared by scanner and session code
package device
