// Package central is the client side of the BLE stack: it discovers nearby
// peripherals from the adapter's live event stream, locates a peripheral by
// advertised name, and performs capability-checked characteristic
// operations against connected peripherals.
//
// Discovery is exposed as lazy channel pipelines. Projection stages use
// unbuffered channels, so items move one at a time at the pace of the
// consumer; a consumer that stops receiving simply stops the flow. Streams
// terminate only when the supplied context is cancelled or the underlying
// adapter stream ends.
package central

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/oac1771/iot-sdk/internal/platform"
	"github.com/oac1771/iot-sdk/internal/platform/goble"
)

// Central drives discovery and characteristic access over a single radio
// adapter. It is created once per process and shared; the adapter is
// released at process exit.
type Central struct {
	adapter platform.Adapter
	logger  *logrus.Logger
}

// New selects the first available adapter from the platform enumeration.
// Enumeration failures surface the platform error intact; ErrAdapterNotFound
// is returned only when the enumeration comes back empty.
func New(logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}

	adapters, err := goble.Adapters(logger)
	if err != nil {
		return nil, fmt.Errorf("enumerate adapters: %w", err)
	}
	if len(adapters) == 0 {
		return nil, ErrAdapterNotFound
	}

	return NewWithAdapter(adapters[0], logger), nil
}

// NewWithAdapter wires an explicit adapter. Used by tests and by callers
// bringing their own backend.
func NewWithAdapter(adapter platform.Adapter, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{adapter: adapter, logger: logger}
}

// events starts an unfiltered scan and returns the adapter's live event
// stream.
func (c *Central) events(ctx context.Context) (<-chan platform.Event, error) {
	return c.adapter.Events(ctx)
}

// peripherals projects the event stream into a stream of peripheral
// handles. Only DeviceUpdated events carry forward; a handle that fails to
// resolve is dropped and the stream continues.
func (c *Central) peripherals(ctx context.Context) (<-chan platform.Peripheral, error) {
	events, err := c.events(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan platform.Peripheral)
	go func() {
		defer close(out)
		for ev := range events {
			if ev.Kind != platform.DeviceUpdated {
				continue
			}

			p, err := c.adapter.Peripheral(ev.PeripheralID)
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"peripheral": ev.PeripheralID,
					"error":      err,
				}).Debug("Dropping unresolvable discovery event")
				continue
			}

			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// PeripheralProperties starts a discovery session and streams property
// snapshots of nearby peripherals. Handles whose property fetch fails or
// yields nothing are dropped silently; the stream itself never fails once
// started.
func (c *Central) PeripheralProperties(ctx context.Context) (<-chan platform.Properties, error) {
	peripherals, err := c.peripherals(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan platform.Properties)
	go func() {
		defer close(out)
		for p := range peripherals {
			props, err := p.Properties(ctx)
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"peripheral": p.ID(),
					"error":      err,
				}).Debug("Dropping peripheral with failed property fetch")
				continue
			}
			if props == nil {
				continue
			}

			select {
			case out <- *props:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// FindPeripheral scans until a peripheral advertises a local name containing
// localName (case-sensitive substring), then connects, resolves its
// services, and returns the handle.
//
// The wait is unbounded: with no matching peripheral in range the call
// blocks until ctx is cancelled. Unlike the property stream, a failed or
// absent property fetch on any candidate aborts the whole search: name
// resolution failures are fatal here, not noise.
func (c *Central) FindPeripheral(ctx context.Context, localName string) (platform.Peripheral, error) {
	peripherals, err := c.peripherals(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.WithField("name", localName).Info("Searching for peripheral")

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case p, ok := <-peripherals:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w: discovery ended before %q appeared", ErrPeripheralNotFound, localName)
			}

			props, err := p.Properties(ctx)
			if err != nil {
				return nil, fmt.Errorf("fetch properties of %q: %w", p.ID(), err)
			}
			if props == nil {
				return nil, fmt.Errorf("%w: peripheral %q", ErrPeripheralPropertiesNotFound, p.ID())
			}
			if props.LocalName == "" {
				return nil, fmt.Errorf("%w: peripheral %q", ErrLocalNameNotFound, p.ID())
			}

			if !strings.Contains(props.LocalName, localName) {
				continue
			}

			c.logger.WithFields(logrus.Fields{
				"peripheral": p.ID(),
				"name":       props.LocalName,
			}).Info("Found matching peripheral")

			if err := p.Connect(ctx); err != nil {
				return nil, fmt.Errorf("connect to %q: %w", p.ID(), err)
			}
			if err := p.DiscoverServices(ctx); err != nil {
				return nil, fmt.Errorf("discover services of %q: %w", p.ID(), err)
			}

			return p, nil
		}
	}
}
