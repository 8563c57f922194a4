// Package platform defines the abstraction over the underlying BLE stack.
//
// The central package is written entirely against these interfaces; the
// go-ble backed implementation lives in the goble subpackage, and the test
// suites script their own implementations.
package platform

import "context"

// EventKind tags an adapter-level discovery event.
type EventKind int

const (
	// DeviceDiscovered is emitted the first time a peripheral is seen.
	DeviceDiscovered EventKind = iota
	// DeviceUpdated is emitted when a known peripheral advertises again.
	DeviceUpdated
	// DeviceConnected is emitted after a connection is established.
	DeviceConnected
	// DeviceDisconnected is emitted when a connection is lost.
	DeviceDisconnected
)

// String returns the event kind name for log fields.
func (k EventKind) String() string {
	switch k {
	case DeviceDiscovered:
		return "device_discovered"
	case DeviceUpdated:
		return "device_updated"
	case DeviceConnected:
		return "device_connected"
	case DeviceDisconnected:
		return "device_disconnected"
	default:
		return "unknown"
	}
}

// Event is a single adapter-level occurrence. PeripheralID identifies the
// peripheral the event concerns and can be resolved via Adapter.Peripheral.
type Event struct {
	Kind         EventKind
	PeripheralID string
}

// Properties is a snapshot of a peripheral's advertised state. It is a
// value: every fetch recomputes it from the most recent advertisement.
// LocalName is empty when the peripheral did not advertise one.
type Properties struct {
	Address          string
	LocalName        string
	RSSI             int
	TxPower          *int
	Connectable      bool
	ManufacturerData []byte
	ServiceData      map[string][]byte
	Services         []string
}

// Property is a bit set of characteristic property flags. The bit layout
// matches the GATT characteristic properties field, and therefore
// ble.Property, so backends can convert with a plain cast.
type Property uint8

const (
	Broadcast Property = 1 << iota
	Read
	WriteWithoutResponse
	Write
	Notify
	Indicate
	SignedWrite
	Extended
)

// Has reports whether all flags in req are present.
func (p Property) Has(req Property) bool {
	return p&req == req
}

// String renders the set flags for error messages and log fields.
func (p Property) String() string {
	names := []struct {
		flag Property
		name string
	}{
		{Broadcast, "broadcast"},
		{Read, "read"},
		{WriteWithoutResponse, "write-without-response"},
		{Write, "write"},
		{Notify, "notify"},
		{Indicate, "indicate"},
		{SignedWrite, "signed-write"},
		{Extended, "extended"},
	}
	var set []string
	for _, n := range names {
		if p&n.flag != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	out := set[0]
	for _, s := range set[1:] {
		out += "|" + s
	}
	return out
}

// Characteristic describes one characteristic of a connected peripheral's
// resolved service tree. UUIDs are normalized (lowercase, no dashes).
type Characteristic struct {
	UUID        string
	ServiceUUID string
	Properties  Property
}

// ValueNotification carries one characteristic value push received after a
// successful subscribe.
type ValueNotification struct {
	UUID string
	Data []byte
}

// Adapter wraps a single platform radio adapter.
type Adapter interface {
	// Events starts an unfiltered scan and returns the adapter's live event
	// stream. The stream closes when the scan stops (context cancellation or
	// adapter shutdown). At most one scan may be active per adapter.
	Events(ctx context.Context) (<-chan Event, error)

	// Peripheral resolves an event's peripheral identifier to a handle.
	Peripheral(id string) (Peripheral, error)
}

// Peripheral is an opaque handle to a remote device. Handles are lookup
// capabilities: state (RSSI, services) refreshes between fetches.
type Peripheral interface {
	ID() string

	// Properties fetches the current advertisement snapshot. Returns
	// (nil, nil) when no advertisement has been captured yet.
	Properties(ctx context.Context) (*Properties, error)

	Connect(ctx context.Context) error
	DiscoverServices(ctx context.Context) error

	// Characteristics enumerates the resolved service tree. Empty until
	// DiscoverServices has completed.
	Characteristics() []Characteristic

	Read(ctx context.Context, c Characteristic) ([]byte, error)
	WriteWithoutResponse(ctx context.Context, c Characteristic, data []byte) error

	// Subscribe enables notifications for c. Values arrive on the stream
	// returned by Notifications, which multiplexes every subscribed
	// characteristic of this peripheral.
	Subscribe(ctx context.Context, c Characteristic) error
	Notifications(ctx context.Context) (<-chan ValueNotification, error)
}
