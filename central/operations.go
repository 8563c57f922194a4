package central

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oac1771/iot-sdk/internal/bleuuid"
	"github.com/oac1771/iot-sdk/internal/platform"
)

// findCharacteristic locates a characteristic in the peripheral's resolved
// service tree. The peripheral must be connected with services discovered
// (see FindPeripheral), otherwise the tree is empty and the lookup fails.
func findCharacteristic(p platform.Peripheral, uuid string) (platform.Characteristic, error) {
	target := bleuuid.Normalize(uuid)
	if target == "" {
		return platform.Characteristic{}, fmt.Errorf("%w: malformed UUID %q", ErrCharacteristicNotFound, uuid)
	}

	for _, char := range p.Characteristics() {
		if char.UUID == target {
			return char, nil
		}
	}
	return platform.Characteristic{}, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, target)
}

// Read performs a single read of the characteristic and returns the raw
// payload. The characteristic must advertise the READ flag.
func (c *Central) Read(ctx context.Context, p platform.Peripheral, uuid string) ([]byte, error) {
	char, err := findCharacteristic(p, uuid)
	if err != nil {
		return nil, err
	}
	if !char.Properties.Has(platform.Read) {
		return nil, &CapabilityError{UUID: char.UUID, Required: platform.Read, Advertised: char.Properties}
	}

	data, err := p.Read(ctx, char)
	if err != nil {
		return nil, fmt.Errorf("read characteristic %s: %w", char.UUID, err)
	}
	return data, nil
}

// Write writes data to the characteristic. The characteristic must
// advertise the WRITE flag; the transfer itself uses write-without-response,
// so no acknowledgment is awaited beyond the local transport accepting the
// write.
func (c *Central) Write(ctx context.Context, p platform.Peripheral, uuid string, data []byte) error {
	char, err := findCharacteristic(p, uuid)
	if err != nil {
		return err
	}
	if !char.Properties.Has(platform.Write) {
		return &CapabilityError{UUID: char.UUID, Required: platform.Write, Advertised: char.Properties}
	}

	if err := p.WriteWithoutResponse(ctx, char, data); err != nil {
		return fmt.Errorf("write characteristic %s: %w", char.UUID, err)
	}

	c.logger.WithFields(logrus.Fields{
		"peripheral":     p.ID(),
		"characteristic": char.UUID,
		"bytes":          len(data),
	}).Debug("Wrote characteristic")
	return nil
}

// Subscribe enables notifications for the characteristic and returns a lazy
// stream of its value pushes. The characteristic must advertise the NOTIFY
// flag.
//
// The peripheral's underlying notification stream multiplexes every
// subscribed characteristic; the returned channel demultiplexes it to the
// target UUID, preserving the original relative order. The stream closes
// when ctx is cancelled.
func (c *Central) Subscribe(ctx context.Context, p platform.Peripheral, uuid string) (<-chan platform.ValueNotification, error) {
	char, err := findCharacteristic(p, uuid)
	if err != nil {
		return nil, err
	}
	if !char.Properties.Has(platform.Notify) {
		return nil, &CapabilityError{UUID: char.UUID, Required: platform.Notify, Advertised: char.Properties}
	}

	if err := p.Subscribe(ctx, char); err != nil {
		return nil, fmt.Errorf("subscribe to characteristic %s: %w", char.UUID, err)
	}

	notifications, err := p.Notifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("open notification stream of %q: %w", p.ID(), err)
	}

	out := make(chan platform.ValueNotification)
	go func() {
		defer close(out)
		for n := range notifications {
			if n.UUID != char.UUID {
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
