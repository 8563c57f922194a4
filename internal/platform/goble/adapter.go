// Package goble implements the platform abstraction on top of the
// go-ble/ble stack.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/oac1771/iot-sdk/internal/platform"
	"github.com/oac1771/iot-sdk/internal/ringchan"
)

// eventBuffer bounds the adapter event stream. Advertisement handlers run on
// the radio event loop and must not block, so overflow drops the oldest
// event rather than stalling the scan.
const eventBuffer = 128

// ErrScanActive is returned by Events while a previous scan on the same
// adapter is still running.
var ErrScanActive = errors.New("scan already active")

// Adapter wraps one ble.Device radio handle.
type Adapter struct {
	dev    ble.Device
	logger *logrus.Logger

	registry *hashmap.Map[string, *Peripheral]

	scanMu   sync.Mutex
	scanning bool
}

// Adapters enumerates the available platform adapters. The go-ble stack
// exposes a single radio per host, so the enumeration has zero or one entry:
// zero when the platform device cannot be opened.
func Adapters(logger *logrus.Logger) ([]platform.Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}

	return []platform.Adapter{newAdapter(dev, logger)}, nil
}

func newAdapter(dev ble.Device, logger *logrus.Logger) *Adapter {
	return &Adapter{
		dev:      dev,
		logger:   logger,
		registry: hashmap.New[string, *Peripheral](),
	}
}

// Events starts an unfiltered scan and returns the live discovery event
// stream. The stream closes when ctx is cancelled or the platform scan
// terminates. A second call while a scan is active fails with ErrScanActive.
func (a *Adapter) Events(ctx context.Context) (<-chan platform.Event, error) {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	if a.scanning {
		return nil, ErrScanActive
	}
	a.scanning = true

	events := ringchan.New[platform.Event](eventBuffer)

	a.logger.Info("Starting BLE scan")
	go func() {
		defer func() {
			a.scanMu.Lock()
			a.scanning = false
			a.scanMu.Unlock()
			events.Close()
		}()

		err := a.dev.Scan(ctx, true, func(adv ble.Advertisement) {
			a.handleAdvertisement(adv, events)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			a.logger.WithError(NormalizeError(err)).Warn("BLE scan terminated")
		}
	}()

	return events.C(), nil
}

// handleAdvertisement updates the peripheral registry and emits a discovery
// event: DeviceDiscovered on first sighting, DeviceUpdated after that.
func (a *Adapter) handleAdvertisement(adv ble.Advertisement, events *ringchan.RingChannel[platform.Event]) {
	id := adv.Addr().String()

	p, existing := a.registry.Get(id)
	if !existing {
		p, existing = a.registry.GetOrInsert(id, newPeripheral(id, a.dev, a.logger))
	}
	p.update(adv)

	kind := platform.DeviceUpdated
	if !existing {
		kind = platform.DeviceDiscovered
		a.logger.WithFields(logrus.Fields{
			"peripheral": id,
			"name":       adv.LocalName(),
			"rssi":       adv.RSSI(),
		}).Debug("Discovered new peripheral")
	}

	events.Send(platform.Event{Kind: kind, PeripheralID: id})
}

// Peripheral resolves a discovery event identifier to a peripheral handle.
func (a *Adapter) Peripheral(id string) (platform.Peripheral, error) {
	p, ok := a.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnknownPeripheral, id)
	}
	return p, nil
}
