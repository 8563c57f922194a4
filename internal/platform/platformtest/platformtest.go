// Package platformtest provides scripted in-memory implementations of the
// platform interfaces for exercising discovery pipelines and characteristic
// operations without a radio.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/oac1771/iot-sdk/internal/platform"
)

// Adapter is a scripted platform.Adapter. Events replays the scripted
// event sequence; peripherals resolve from the registered set.
type Adapter struct {
	mu          sync.Mutex
	peripherals map[string]platform.Peripheral
	script      []platform.Event

	// HoldOpen keeps the event stream open (blocked on ctx) after the
	// script is exhausted, modelling a scan with nothing more to report.
	HoldOpen bool

	// EventsErr, when set, fails the Events call itself.
	EventsErr error

	eventsCalls atomic.Int32
}

// NewAdapter creates an empty scripted adapter.
func NewAdapter() *Adapter {
	return &Adapter{peripherals: make(map[string]platform.Peripheral)}
}

// AddPeripheral registers a peripheral for identifier resolution.
func (a *Adapter) AddPeripheral(p platform.Peripheral) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peripherals[p.ID()] = p
	return a
}

// Script appends events to the replay sequence.
func (a *Adapter) Script(events ...platform.Event) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = append(a.script, events...)
	return a
}

// EventsCalls reports how many discovery sessions were started.
func (a *Adapter) EventsCalls() int {
	return int(a.eventsCalls.Load())
}

func (a *Adapter) Events(ctx context.Context) (<-chan platform.Event, error) {
	if a.EventsErr != nil {
		return nil, a.EventsErr
	}
	a.eventsCalls.Add(1)

	a.mu.Lock()
	script := append([]platform.Event(nil), a.script...)
	holdOpen := a.HoldOpen
	a.mu.Unlock()

	ch := make(chan platform.Event)
	go func() {
		defer close(ch)
		for _, ev := range script {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if holdOpen {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (a *Adapter) Peripheral(id string) (platform.Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.peripherals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnknownPeripheral, id)
	}
	return p, nil
}

// Peripheral is a scripted platform.Peripheral that records every platform
// call so tests can assert that capability gating short-circuits before any
// I/O happens.
type Peripheral struct {
	id string

	mu       sync.Mutex
	props    *platform.Properties
	propsErr error
	chars    []platform.Characteristic

	connectErr  error
	discoverErr error
	readData    []byte
	readErr     error
	writeErr    error
	subErr      error

	written [][]byte
	notifCh chan platform.ValueNotification

	ConnectCalls   atomic.Int32
	DiscoverCalls  atomic.Int32
	ReadCalls      atomic.Int32
	WriteCalls     atomic.Int32
	SubscribeCalls atomic.Int32
}

// NewPeripheral creates a peripheral with no advertisement snapshot.
func NewPeripheral(id string) *Peripheral {
	return &Peripheral{id: id}
}

// WithName sets a properties snapshot advertising the given local name.
func (p *Peripheral) WithName(name string) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props = &platform.Properties{Address: p.id, LocalName: name}
	return p
}

// WithProperties sets the full properties snapshot.
func (p *Peripheral) WithProperties(props *platform.Properties) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props = props
	return p
}

// WithPropertiesError makes every property fetch fail.
func (p *Peripheral) WithPropertiesError(err error) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.propsErr = err
	return p
}

// WithCharacteristics sets the resolved service tree.
func (p *Peripheral) WithCharacteristics(chars ...platform.Characteristic) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chars = chars
	return p
}

// WithReadData sets the payload returned by Read.
func (p *Peripheral) WithReadData(data []byte) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readData = data
	return p
}

// WithConnectError makes Connect fail.
func (p *Peripheral) WithConnectError(err error) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
	return p
}

// Written returns the payloads passed to WriteWithoutResponse, in order.
func (p *Peripheral) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}

// PushNotification delivers a value notification to the peripheral-wide
// stream. Blocks until a consumer receives it.
func (p *Peripheral) PushNotification(n platform.ValueNotification) {
	p.mu.Lock()
	ch := p.notifCh
	p.mu.Unlock()
	if ch != nil {
		ch <- n
	}
}

// CloseNotifications ends the peripheral-wide stream.
func (p *Peripheral) CloseNotifications() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notifCh != nil {
		close(p.notifCh)
		p.notifCh = nil
	}
}

func (p *Peripheral) ID() string { return p.id }

func (p *Peripheral) Properties(_ context.Context) (*platform.Properties, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.propsErr != nil {
		return nil, p.propsErr
	}
	if p.props == nil {
		return nil, nil
	}
	props := *p.props
	return &props, nil
}

func (p *Peripheral) Connect(_ context.Context) error {
	p.ConnectCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectErr
}

func (p *Peripheral) DiscoverServices(_ context.Context) error {
	p.DiscoverCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoverErr
}

func (p *Peripheral) Characteristics() []platform.Characteristic {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.Characteristic(nil), p.chars...)
}

func (p *Peripheral) Read(_ context.Context, _ platform.Characteristic) ([]byte, error) {
	p.ReadCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return nil, p.readErr
	}
	return append([]byte(nil), p.readData...), nil
}

func (p *Peripheral) WriteWithoutResponse(_ context.Context, _ platform.Characteristic, data []byte) error {
	p.WriteCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return p.writeErr
	}
	p.written = append(p.written, append([]byte(nil), data...))
	return nil
}

func (p *Peripheral) Subscribe(_ context.Context, _ platform.Characteristic) error {
	p.SubscribeCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subErr
}

func (p *Peripheral) Notifications(_ context.Context) (<-chan platform.ValueNotification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notifCh == nil {
		p.notifCh = make(chan platform.ValueNotification)
	}
	return p.notifCh, nil
}
