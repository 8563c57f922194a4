package goble

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/oac1771/iot-sdk/internal/bleuuid"
	"github.com/oac1771/iot-sdk/internal/platform"
	"github.com/oac1771/iot-sdk/internal/ringchan"
)

// notificationBuffer bounds each per-consumer notification stream.
// Notification handlers run on the radio event loop; overflow drops the
// oldest value instead of blocking the stack.
const notificationBuffer = 128

// txPowerUnset is the advertisement value meaning "TX power not available".
const txPowerUnset = 127

// characteristicEntry pairs the live go-ble handle with its resolved
// service, keyed by normalized characteristic UUID.
type characteristicEntry struct {
	char        *ble.Characteristic
	serviceUUID string
}

// Peripheral implements platform.Peripheral over a go-ble client.
type Peripheral struct {
	id     string
	dev    ble.Device
	logger *logrus.Logger

	mu sync.RWMutex

	// advertisement snapshot, refreshed by update
	seen        bool
	name        string
	rssi        int
	txPower     *int
	connectable bool
	manufData   []byte
	serviceData map[string][]byte
	services    []string

	// connMu serializes Connect and DiscoverServices. The blocking platform
	// calls run under connMu only, never under mu, so the scan callback can
	// keep refreshing the advertisement snapshot while a dial is in flight.
	connMu           sync.Mutex
	client           ble.Client
	servicesResolved bool
	chars            *orderedmap.OrderedMap[string, characteristicEntry]

	subsMu sync.Mutex
	subs   map[*ringchan.RingChannel[platform.ValueNotification]]struct{}
}

func newPeripheral(id string, dev ble.Device, logger *logrus.Logger) *Peripheral {
	return &Peripheral{
		id:          id,
		dev:         dev,
		logger:      logger,
		serviceData: make(map[string][]byte),
		chars:       orderedmap.New[string, characteristicEntry](),
		subs:        make(map[*ringchan.RingChannel[platform.ValueNotification]]struct{}),
	}
}

// ID returns the peripheral identifier (the platform address).
func (p *Peripheral) ID() string {
	return p.id
}

// update refreshes the advertisement snapshot from a new advertisement.
func (p *Peripheral) update(adv ble.Advertisement) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen = true
	p.rssi = adv.RSSI()
	p.connectable = adv.Connectable()

	if name := adv.LocalName(); name != "" {
		p.name = name
	}

	if manufData := adv.ManufacturerData(); len(manufData) > 0 {
		p.manufData = manufData
	}

	if adv.TxPowerLevel() != txPowerUnset {
		txPower := adv.TxPowerLevel()
		p.txPower = &txPower
	}

	needsSort := false
	for _, svc := range adv.Services() {
		normalized := bleuuid.Normalize(svc.String())
		if !p.hasServiceUUID(normalized) {
			p.services = append(p.services, normalized)
			needsSort = true
		}
	}
	if needsSort {
		sort.Strings(p.services)
	}

	for _, sd := range adv.ServiceData() {
		p.serviceData[bleuuid.Normalize(sd.UUID.String())] = sd.Data
	}
}

func (p *Peripheral) hasServiceUUID(uuid string) bool {
	for _, s := range p.services {
		if s == uuid {
			return true
		}
	}
	return false
}

// Properties returns a copy of the current advertisement snapshot, or
// (nil, nil) when no advertisement has been captured yet.
func (p *Peripheral) Properties(_ context.Context) (*platform.Properties, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.seen {
		return nil, nil
	}

	props := &platform.Properties{
		Address:          p.id,
		LocalName:        p.name,
		RSSI:             p.rssi,
		Connectable:      p.connectable,
		ManufacturerData: append([]byte(nil), p.manufData...),
		ServiceData:      make(map[string][]byte, len(p.serviceData)),
		Services:         append([]string(nil), p.services...),
	}
	if p.txPower != nil {
		txPower := *p.txPower
		props.TxPower = &txPower
	}
	for uuid, data := range p.serviceData {
		props.ServiceData[uuid] = append([]byte(nil), data...)
	}

	return props, nil
}

// Connect dials the peripheral. The connection stays open until the process
// exits or the remote side drops it; explicit teardown is a caller concern.
func (p *Peripheral) Connect(ctx context.Context) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	p.mu.RLock()
	connected := p.client != nil
	p.mu.RUnlock()
	if connected {
		return fmt.Errorf("%w: %s", platform.ErrAlreadyConnected, p.id)
	}

	p.logger.WithField("peripheral", p.id).Info("Connecting to BLE peripheral")

	client, err := p.dev.Dial(ctx, ble.NewAddr(p.id))
	if err != nil {
		return fmt.Errorf("dial %q: %w", p.id, NormalizeError(err))
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// DiscoverServices resolves the full service tree. Must be called after
// Connect and before any characteristic operation.
func (p *Peripheral) DiscoverServices(_ context.Context) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("%w: %s", platform.ErrNotConnected, p.id)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return fmt.Errorf("discover profile for %q: %w", p.id, NormalizeError(err))
	}

	p.mu.Lock()
	for _, svc := range profile.Services {
		svcUUID := bleuuid.Normalize(svc.UUID.String())
		for _, char := range svc.Characteristics {
			charUUID := bleuuid.Normalize(char.UUID.String())
			p.chars.Set(charUUID, characteristicEntry{char: char, serviceUUID: svcUUID})
		}
	}
	p.servicesResolved = true
	resolved := p.chars.Len()
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"peripheral":      p.id,
		"services":        len(profile.Services),
		"characteristics": resolved,
	}).Info("Resolved BLE services")
	return nil
}

// Characteristics enumerates the resolved service tree in discovery order.
// Empty until DiscoverServices has completed.
func (p *Peripheral) Characteristics() []platform.Characteristic {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]platform.Characteristic, 0, p.chars.Len())
	for pair := p.chars.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, platform.Characteristic{
			UUID:        pair.Key,
			ServiceUUID: pair.Value.serviceUUID,
			Properties:  platform.Property(pair.Value.char.Property),
		})
	}
	return result
}

// entryFor snapshots the client and live characteristic handle for an
// operation. The returned handle stays valid for the life of the connection.
func (p *Peripheral) entryFor(c platform.Characteristic) (ble.Client, characteristicEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.client == nil {
		return nil, characteristicEntry{}, fmt.Errorf("%w: %s", platform.ErrNotConnected, p.id)
	}
	if !p.servicesResolved {
		return nil, characteristicEntry{}, fmt.Errorf("%w: %s", platform.ErrServicesNotResolved, p.id)
	}

	entry, ok := p.chars.Get(c.UUID)
	if !ok {
		return nil, characteristicEntry{}, fmt.Errorf("characteristic %s not resolved on %s", c.UUID, p.id)
	}
	return p.client, entry, nil
}

// Read performs a single characteristic read.
func (p *Peripheral) Read(_ context.Context, c platform.Characteristic) ([]byte, error) {
	client, entry, err := p.entryFor(c)
	if err != nil {
		return nil, err
	}

	data, err := client.ReadCharacteristic(entry.char)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

// WriteWithoutResponse writes data without awaiting a peripheral
// acknowledgment beyond the local transport accepting the write.
func (p *Peripheral) WriteWithoutResponse(_ context.Context, c platform.Characteristic, data []byte) error {
	client, entry, err := p.entryFor(c)
	if err != nil {
		return err
	}

	if err := client.WriteCharacteristic(entry.char, data, true); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Subscribe enables notifications for c. Received values fan out to every
// stream returned by Notifications.
func (p *Peripheral) Subscribe(_ context.Context, c platform.Characteristic) error {
	client, entry, err := p.entryFor(c)
	if err != nil {
		return err
	}

	uuid := c.UUID
	err = client.Subscribe(entry.char, false, func(req []byte) {
		p.publish(platform.ValueNotification{
			UUID: uuid,
			Data: append([]byte(nil), req...),
		})
	})
	if err != nil {
		return NormalizeError(err)
	}

	p.logger.WithFields(logrus.Fields{
		"peripheral":     p.id,
		"characteristic": uuid,
	}).Debug("Subscribed to notifications")
	return nil
}

// publish fans a notification out to all registered consumer streams.
func (p *Peripheral) publish(n platform.ValueNotification) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	for sub := range p.subs {
		sub.Send(n)
	}
}

// Notifications returns a new peripheral-wide notification stream. Each call
// creates an independent consumer; the stream closes when ctx is cancelled.
func (p *Peripheral) Notifications(ctx context.Context) (<-chan platform.ValueNotification, error) {
	p.mu.RLock()
	connected := p.client != nil
	p.mu.RUnlock()
	if !connected {
		return nil, fmt.Errorf("%w: %s", platform.ErrNotConnected, p.id)
	}

	rc := ringchan.New[platform.ValueNotification](notificationBuffer)

	p.subsMu.Lock()
	p.subs[rc] = struct{}{}
	p.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		p.subsMu.Lock()
		delete(p.subs, rc)
		p.subsMu.Unlock()
		rc.Close()
	}()

	return rc.C(), nil
}
