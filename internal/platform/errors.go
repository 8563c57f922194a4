package platform

import "errors"

// Sentinel errors shared by all backend implementations. Backends wrap these
// with %w so callers can match on errors.Is regardless of the underlying
// stack's message texts.
var (
	// ErrBluetoothOff indicates the radio is powered down or unavailable.
	ErrBluetoothOff = errors.New("bluetooth is turned off")

	// ErrNotConnected indicates an operation that requires an established
	// connection was attempted without one.
	ErrNotConnected = errors.New("peripheral not connected")

	// ErrAlreadyConnected indicates a redundant connect attempt.
	ErrAlreadyConnected = errors.New("peripheral already connected")

	// ErrServicesNotResolved indicates a characteristic operation before
	// service discovery completed.
	ErrServicesNotResolved = errors.New("services not resolved")

	// ErrUnknownPeripheral indicates an identifier that does not resolve to
	// any peripheral seen by the adapter.
	ErrUnknownPeripheral = errors.New("unknown peripheral")
)
