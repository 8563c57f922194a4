package central

import (
	"errors"
	"fmt"

	"github.com/oac1771/iot-sdk/internal/platform"
)

// Resource-absence errors: the requested entity does not exist at the time
// of the call. Always surfaced, never retried internally.
var (
	ErrAdapterNotFound              = errors.New("adapter not found")
	ErrPeripheralNotFound           = errors.New("peripheral not found")
	ErrPeripheralPropertiesNotFound = errors.New("peripheral properties not found")
	ErrLocalNameNotFound            = errors.New("local name not found")
	ErrCharacteristicNotFound       = errors.New("characteristic not found")
)

// Capability errors: the operation is structurally disallowed by the
// characteristic's advertised property flags. Raised before any platform
// call is attempted.
var (
	ErrCharacteristicDoesNotSupportRead   = errors.New("characteristic does not support read")
	ErrCharacteristicDoesNotSupportWrite  = errors.New("characteristic does not support write")
	ErrCharacteristicDoesNotSupportNotify = errors.New("characteristic does not support notify")
)

// CapabilityError reports which characteristic lacked which flag.
// errors.Is matches the corresponding per-operation sentinel.
type CapabilityError struct {
	UUID       string
	Required   platform.Property
	Advertised platform.Property
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("characteristic %s does not support %s (advertised: %s)",
		e.UUID, e.Required, e.Advertised)
}

func (e *CapabilityError) Unwrap() error {
	switch e.Required {
	case platform.Read:
		return ErrCharacteristicDoesNotSupportRead
	case platform.Write:
		return ErrCharacteristicDoesNotSupportWrite
	case platform.Notify:
		return ErrCharacteristicDoesNotSupportNotify
	default:
		return nil
	}
}
