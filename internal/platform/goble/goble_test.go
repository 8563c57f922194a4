package goble

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/oac1771/iot-sdk/internal/platform"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeAdv implements ble.Advertisement by embedding the interface and
// overriding only the methods the adapter reads. Unset methods panic if
// reached, which is the point: they must not be reached.
type fakeAdv struct {
	ble.Advertisement

	addr        string
	name        string
	rssi        int
	txPower     int
	connectable bool
	manufData   []byte
	services    []ble.UUID
	serviceData []ble.ServiceData
}

func newFakeAdv(addr string) *fakeAdv {
	return &fakeAdv{addr: addr, rssi: -50, txPower: 127, connectable: true}
}

func (a *fakeAdv) Addr() ble.Addr                 { return ble.NewAddr(a.addr) }
func (a *fakeAdv) LocalName() string              { return a.name }
func (a *fakeAdv) RSSI() int                      { return a.rssi }
func (a *fakeAdv) TxPowerLevel() int              { return a.txPower }
func (a *fakeAdv) Connectable() bool              { return a.connectable }
func (a *fakeAdv) ManufacturerData() []byte       { return a.manufData }
func (a *fakeAdv) Services() []ble.UUID           { return a.services }
func (a *fakeAdv) ServiceData() []ble.ServiceData { return a.serviceData }

// fakeDevice scripts Scan and Dial; every other ble.Device method panics via
// the embedded nil interface.
type fakeDevice struct {
	ble.Device

	scan func(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	dial func(ctx context.Context, addr ble.Addr) (ble.Client, error)
}

func (d *fakeDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return d.scan(ctx, allowDup, h)
}

func (d *fakeDevice) Dial(ctx context.Context, addr ble.Addr) (ble.Client, error) {
	return d.dial(ctx, addr)
}

// scanScript replays the advertisements once and ends the scan.
func scanScript(advs ...ble.Advertisement) func(context.Context, bool, ble.AdvHandler) error {
	return func(_ context.Context, _ bool, h ble.AdvHandler) error {
		for _, adv := range advs {
			h(adv)
		}
		return nil
	}
}

// scanHold replays the advertisements, then keeps the scan running until ctx
// is cancelled.
func scanHold(advs ...ble.Advertisement) func(context.Context, bool, ble.AdvHandler) error {
	return func(ctx context.Context, _ bool, h ble.AdvHandler) error {
		for _, adv := range advs {
			h(adv)
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

type fakeClient struct {
	ble.Client

	profile    *ble.Profile
	profileErr error
	readData   []byte
	readErr    error

	writtenData  []byte
	writtenNoRsp bool
	notifyFn     ble.NotificationHandler
	subscribeInd bool
}

func (c *fakeClient) DiscoverProfile(_ bool) (*ble.Profile, error) {
	if c.profileErr != nil {
		return nil, c.profileErr
	}
	return c.profile, nil
}

func (c *fakeClient) ReadCharacteristic(_ *ble.Characteristic) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.readData, nil
}

func (c *fakeClient) WriteCharacteristic(_ *ble.Characteristic, value []byte, noRsp bool) error {
	c.writtenData = append([]byte(nil), value...)
	c.writtenNoRsp = noRsp
	return nil
}

func (c *fakeClient) Subscribe(_ *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.subscribeInd = ind
	c.notifyFn = h
	return nil
}

func heartRateProfile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID: ble.MustParse("180d"),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.MustParse("2a37"), Property: ble.CharNotify},
					{UUID: ble.MustParse("2a39"), Property: ble.CharWrite | ble.CharWriteNR},
				},
			},
			{
				UUID: ble.MustParse("180f"),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.MustParse("2a19"), Property: ble.CharRead | ble.CharNotify},
				},
			},
		},
	}
}

type AdapterTestSuite struct {
	suite.Suite
}

func (suite *AdapterTestSuite) TestScanEmitsDiscoveredThenUpdated() {
	// GOAL: Verify the first advertisement of an address yields a discovered
	// event and every repeat yields an updated event, with the registry
	// resolving the event id to a live peripheral

	adv := newFakeAdv("aa:bb:cc:dd:ee:01")
	adv.name = "Sensor"

	dev := &fakeDevice{scan: scanScript(adv, adv, adv)}
	adapter := newAdapter(dev, quietLogger())

	stream, err := adapter.Events(context.Background())
	suite.Require().NoError(err)

	var kinds []platform.EventKind
	for ev := range stream {
		suite.Equal("aa:bb:cc:dd:ee:01", ev.PeripheralID)
		kinds = append(kinds, ev.Kind)
	}

	suite.Equal([]platform.EventKind{
		platform.DeviceDiscovered,
		platform.DeviceUpdated,
		platform.DeviceUpdated,
	}, kinds)

	p, err := adapter.Peripheral("aa:bb:cc:dd:ee:01")
	suite.Require().NoError(err)

	props, err := p.Properties(context.Background())
	suite.Require().NoError(err)
	suite.Require().NotNil(props)
	suite.Equal("Sensor", props.LocalName)
}

func (suite *AdapterTestSuite) TestDistinctAddressesGetDistinctPeripherals() {
	// GOAL: Verify the registry keys peripherals by address

	advA := newFakeAdv("aa:bb:cc:dd:ee:01")
	advA.name = "A"
	advB := newFakeAdv("aa:bb:cc:dd:ee:02")
	advB.name = "B"

	dev := &fakeDevice{scan: scanScript(advA, advB)}
	adapter := newAdapter(dev, quietLogger())

	stream, err := adapter.Events(context.Background())
	suite.Require().NoError(err)
	for range stream {
	}

	pa, err := adapter.Peripheral("aa:bb:cc:dd:ee:01")
	suite.Require().NoError(err)
	pb, err := adapter.Peripheral("aa:bb:cc:dd:ee:02")
	suite.Require().NoError(err)
	suite.NotSame(pa, pb)
}

func (suite *AdapterTestSuite) TestUnknownPeripheralID() {
	adapter := newAdapter(&fakeDevice{}, quietLogger())

	_, err := adapter.Peripheral("aa:bb:cc:dd:ee:ff")
	suite.ErrorIs(err, platform.ErrUnknownPeripheral)
}

func (suite *AdapterTestSuite) TestConcurrentScansRejected() {
	// GOAL: Verify one scan session per adapter: a second Events call while
	// the first scan runs fails with ErrScanActive, and a new session is
	// possible once the first ends

	dev := &fakeDevice{scan: scanHold()}
	adapter := newAdapter(dev, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())

	stream, err := adapter.Events(ctx)
	suite.Require().NoError(err)

	_, err = adapter.Events(context.Background())
	suite.ErrorIs(err, ErrScanActive)

	cancel()
	for range stream {
	}

	suite.Eventually(func() bool {
		retryCtx, retryCancel := context.WithCancel(context.Background())
		next, err := adapter.Events(retryCtx)
		retryCancel()
		if err != nil {
			return false
		}
		for range next {
		}
		return true
	}, time.Second, 10*time.Millisecond, "a new scan must be possible after the previous one ends")
}

type PeripheralSnapshotTestSuite struct {
	suite.Suite

	peripheral *Peripheral
}

func (suite *PeripheralSnapshotTestSuite) SetupTest() {
	suite.peripheral = newPeripheral("aa:bb:cc:dd:ee:01", &fakeDevice{}, quietLogger())
}

func (suite *PeripheralSnapshotTestSuite) TestNilBeforeFirstAdvertisement() {
	props, err := suite.peripheral.Properties(context.Background())
	suite.NoError(err)
	suite.Nil(props, "a peripheral that never advertised has no snapshot")
}

func (suite *PeripheralSnapshotTestSuite) TestNameSurvivesAnonymousAdvertisements() {
	// GOAL: Verify a named advertisement followed by scan-response frames
	// without a local name keeps the known name while refreshing RSSI

	named := newFakeAdv("aa:bb:cc:dd:ee:01")
	named.name = "Sensor"
	named.rssi = -40
	suite.peripheral.update(named)

	anonymous := newFakeAdv("aa:bb:cc:dd:ee:01")
	anonymous.rssi = -70
	suite.peripheral.update(anonymous)

	props, err := suite.peripheral.Properties(context.Background())
	suite.Require().NoError(err)
	suite.Equal("Sensor", props.LocalName)
	suite.Equal(-70, props.RSSI)
}

func (suite *PeripheralSnapshotTestSuite) TestTxPowerUnsetSentinel() {
	// GOAL: Verify the go-ble "no TX power" value 127 maps to an absent
	// field, and a real value is captured

	suite.peripheral.update(newFakeAdv("aa:bb:cc:dd:ee:01"))

	props, err := suite.peripheral.Properties(context.Background())
	suite.Require().NoError(err)
	suite.Nil(props.TxPower)

	powered := newFakeAdv("aa:bb:cc:dd:ee:01")
	powered.txPower = -8
	suite.peripheral.update(powered)

	props, err = suite.peripheral.Properties(context.Background())
	suite.Require().NoError(err)
	suite.Require().NotNil(props.TxPower)
	suite.Equal(-8, *props.TxPower)
}

func (suite *PeripheralSnapshotTestSuite) TestServicesMergedNormalizedSorted() {
	// GOAL: Verify advertised service UUIDs accumulate across advertisements
	// without duplicates, normalized and in sorted order

	first := newFakeAdv("aa:bb:cc:dd:ee:01")
	first.services = []ble.UUID{ble.MustParse("180f")}
	suite.peripheral.update(first)

	second := newFakeAdv("aa:bb:cc:dd:ee:01")
	second.services = []ble.UUID{ble.MustParse("180d"), ble.MustParse("180f")}
	suite.peripheral.update(second)

	props, err := suite.peripheral.Properties(context.Background())
	suite.Require().NoError(err)
	suite.Equal([]string{"180d", "180f"}, props.Services)
}

func (suite *PeripheralSnapshotTestSuite) TestSnapshotIsDeepCopy() {
	// GOAL: Verify callers cannot mutate the peripheral state through a
	// returned snapshot

	adv := newFakeAdv("aa:bb:cc:dd:ee:01")
	adv.manufData = []byte{0x4c, 0x00}
	adv.serviceData = []ble.ServiceData{{UUID: ble.MustParse("180f"), Data: []byte{0x64}}}
	suite.peripheral.update(adv)

	props, err := suite.peripheral.Properties(context.Background())
	suite.Require().NoError(err)

	props.ManufacturerData[0] = 0xff
	props.ServiceData["180f"][0] = 0xff

	fresh, err := suite.peripheral.Properties(context.Background())
	suite.Require().NoError(err)
	suite.Equal([]byte{0x4c, 0x00}, fresh.ManufacturerData)
	suite.Equal([]byte{0x64}, fresh.ServiceData["180f"])
}

type PeripheralConnectionTestSuite struct {
	suite.Suite

	client     *fakeClient
	peripheral *Peripheral
}

func (suite *PeripheralConnectionTestSuite) SetupTest() {
	suite.client = &fakeClient{profile: heartRateProfile()}
	dev := &fakeDevice{
		dial: func(_ context.Context, _ ble.Addr) (ble.Client, error) {
			return suite.client, nil
		},
	}
	suite.peripheral = newPeripheral("aa:bb:cc:dd:ee:01", dev, quietLogger())
}

func (suite *PeripheralConnectionTestSuite) connect() {
	suite.Require().NoError(suite.peripheral.Connect(context.Background()))
	suite.Require().NoError(suite.peripheral.DiscoverServices(context.Background()))
}

func (suite *PeripheralConnectionTestSuite) TestOperationsGatedOnConnectionState() {
	// GOAL: Verify the state ladder: characteristic operations require a
	// connection, then resolved services, in that order

	ctx := context.Background()
	char := platform.Characteristic{UUID: "2a19"}

	_, err := suite.peripheral.Read(ctx, char)
	suite.ErrorIs(err, platform.ErrNotConnected)

	suite.Require().NoError(suite.peripheral.Connect(ctx))

	_, err = suite.peripheral.Read(ctx, char)
	suite.ErrorIs(err, platform.ErrServicesNotResolved)

	suite.Require().NoError(suite.peripheral.DiscoverServices(ctx))

	suite.client.readData = []byte{0x64}
	data, err := suite.peripheral.Read(ctx, char)
	suite.Require().NoError(err)
	suite.Equal([]byte{0x64}, data)
}

func (suite *PeripheralConnectionTestSuite) TestDoubleConnectRejected() {
	ctx := context.Background()
	suite.Require().NoError(suite.peripheral.Connect(ctx))
	suite.ErrorIs(suite.peripheral.Connect(ctx), platform.ErrAlreadyConnected)
}

func (suite *PeripheralConnectionTestSuite) TestCharacteristicsCarryServiceAndPropertyBits() {
	// GOAL: Verify the resolved tree maps go-ble property bits onto the
	// platform flags and records each characteristic's parent service

	suite.connect()

	chars := suite.peripheral.Characteristics()
	suite.Require().Len(chars, 3)

	byUUID := make(map[string]platform.Characteristic, len(chars))
	for _, c := range chars {
		byUUID[c.UUID] = c
	}

	hr := byUUID["2a37"]
	suite.Equal("180d", hr.ServiceUUID)
	suite.True(hr.Properties.Has(platform.Notify))
	suite.False(hr.Properties.Has(platform.Read))

	cp := byUUID["2a39"]
	suite.True(cp.Properties.Has(platform.Write))
	suite.True(cp.Properties.Has(platform.WriteWithoutResponse))

	batt := byUUID["2a19"]
	suite.Equal("180f", batt.ServiceUUID)
	suite.True(batt.Properties.Has(platform.Read))
	suite.True(batt.Properties.Has(platform.Notify))
}

func (suite *PeripheralConnectionTestSuite) TestWriteUsesWriteWithoutResponse() {
	suite.connect()

	err := suite.peripheral.WriteWithoutResponse(context.Background(),
		platform.Characteristic{UUID: "2a39"}, []byte{0x01, 0x02})
	suite.Require().NoError(err)
	suite.Equal([]byte{0x01, 0x02}, suite.client.writtenData)
	suite.True(suite.client.writtenNoRsp, "the transfer must not await a response")
}

func (suite *PeripheralConnectionTestSuite) TestSubscribeFansOutToNotificationStreams() {
	// GOAL: Verify values pushed by the radio callback reach every open
	// notification stream, tagged with the characteristic UUID, and that
	// cancelling a stream's context closes it

	suite.connect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := suite.peripheral.Notifications(ctx)
	suite.Require().NoError(err)

	err = suite.peripheral.Subscribe(ctx, platform.Characteristic{UUID: "2a37"})
	suite.Require().NoError(err)
	suite.Require().NotNil(suite.client.notifyFn)
	suite.False(suite.client.subscribeInd, "notifications, not indications")

	suite.client.notifyFn([]byte{0x06, 0x48})

	select {
	case n := <-stream:
		suite.Equal("2a37", n.UUID)
		suite.Equal([]byte{0x06, 0x48}, n.Data)
	case <-time.After(time.Second):
		suite.Fail("notification did not reach the stream")
	}

	cancel()
	suite.Eventually(func() bool {
		_, open := <-stream
		return !open
	}, time.Second, 10*time.Millisecond, "the stream must close after cancellation")
}

func (suite *PeripheralConnectionTestSuite) TestAdvertisementUpdatesFlowDuringDial() {
	// GOAL: Verify the advertisement snapshot stays writable while a dial
	// is in flight. The scan callback runs on the radio event loop and must
	// never wait out a connect attempt.
	//
	// TEST SCENARIO: Park Connect inside Dial, refresh the snapshot from a
	// concurrent advertisement, then release the dial and check both the
	// connection and the refreshed snapshot took effect

	dialStarted := make(chan struct{})
	dialRelease := make(chan struct{})
	dev := &fakeDevice{
		dial: func(_ context.Context, _ ble.Addr) (ble.Client, error) {
			close(dialStarted)
			<-dialRelease
			return suite.client, nil
		},
	}
	p := newPeripheral("aa:bb:cc:dd:ee:01", dev, quietLogger())

	connectDone := make(chan error, 1)
	go func() {
		connectDone <- p.Connect(context.Background())
	}()
	<-dialStarted

	adv := newFakeAdv("aa:bb:cc:dd:ee:01")
	adv.name = "Sensor"

	updateDone := make(chan struct{})
	go func() {
		p.update(adv)
		close(updateDone)
	}()

	select {
	case <-updateDone:
	case <-time.After(time.Second):
		suite.FailNow("advertisement update blocked behind the in-flight dial")
	}

	close(dialRelease)
	suite.Require().NoError(<-connectDone)

	props, err := p.Properties(context.Background())
	suite.Require().NoError(err)
	suite.Require().NotNil(props)
	suite.Equal("Sensor", props.LocalName)
}

func (suite *PeripheralConnectionTestSuite) TestNotificationsRequireConnection() {
	_, err := suite.peripheral.Notifications(context.Background())
	suite.ErrorIs(err, platform.ErrNotConnected)
}

type NormalizeErrorTestSuite struct {
	suite.Suite
}

func (suite *NormalizeErrorTestSuite) TestPlatformStringsMapToSentinels() {
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{
			name:     "darwin invalid central manager state",
			input:    errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			expected: platform.ErrBluetoothOff,
		},
		{
			name:     "bluetooth powered off",
			input:    errors.New("Bluetooth is turned off"),
			expected: platform.ErrBluetoothOff,
		},
		{
			name:     "not connected",
			input:    errors.New("device not connected"),
			expected: platform.ErrNotConnected,
		},
		{
			name:     "already connected",
			input:    errors.New("device already connected"),
			expected: platform.ErrAlreadyConnected,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			err := NormalizeError(tt.input)
			suite.ErrorIs(err, tt.expected)
			suite.Contains(err.Error(), tt.input.Error(), "the original message must be preserved")
		})
	}
}

func (suite *NormalizeErrorTestSuite) TestUnrecognizedErrorsPassThrough() {
	original := errors.New("something else entirely")
	suite.Same(original, NormalizeError(original))
	suite.Nil(NormalizeError(nil))
}

func TestAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(AdapterTestSuite))
}

func TestPeripheralSnapshotTestSuite(t *testing.T) {
	suite.Run(t, new(PeripheralSnapshotTestSuite))
}

func TestPeripheralConnectionTestSuite(t *testing.T) {
	suite.Run(t, new(PeripheralConnectionTestSuite))
}

func TestNormalizeErrorTestSuite(t *testing.T) {
	suite.Run(t, new(NormalizeErrorTestSuite))
}
