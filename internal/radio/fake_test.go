package radio

import (
	"context"
	"errors"
	"sync"
)

// fakeAdapter replays a scripted event stream and records every call.
type fakeAdapter struct {
	mu sync.Mutex

	powered    bool
	powerErr   error
	discoverFn func(ctx context.Context) (<-chan DeviceEvent, error)
	events     []DeviceEvent
	devices    map[Address]Device
	propErr    map[Address]error

	paired     map[Address]bool
	connected  map[Address]bool
	pairErr    map[Address]error
	connectErr map[Address]error
	discErr    map[Address]error

	// gate, if set, blocks Pair until closed.
	gate chan struct{}

	discoveries int
	calls       []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		devices:    map[Address]Device{},
		propErr:    map[Address]error{},
		paired:     map[Address]bool{},
		connected:  map[Address]bool{},
		pairErr:    map[Address]error{},
		connectErr: map[Address]error{},
		discErr:    map[Address]error{},
	}
}

// addDevice registers a device and scripts an add event for it.
func (f *fakeAdapter) addDevice(d Device) {
	f.devices[d.Address] = d
	f.paired[d.Address] = d.Paired
	f.connected[d.Address] = d.Connected
	f.events = append(f.events, DeviceEvent{Kind: DeviceAdded, Address: d.Address})
}

func (f *fakeAdapter) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAdapter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) Discoveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discoveries
}

func (f *fakeAdapter) Powered(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powered, f.powerErr
}

func (f *fakeAdapter) SetPowered(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.powerErr != nil {
		return f.powerErr
	}
	f.powered = on
	return nil
}

// DiscoverDevices delivers the scripted events and closes the stream, unless
// discoverFn overrides it.
func (f *fakeAdapter) DiscoverDevices(ctx context.Context) (<-chan DeviceEvent, error) {
	f.mu.Lock()
	f.discoveries++
	fn := f.discoverFn
	events := append([]DeviceEvent(nil), f.events...)
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	ch := make(chan DeviceEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeAdapter) DeviceProperties(_ context.Context, addr Address) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.propErr[addr]; err != nil {
		return Device{}, err
	}
	d, ok := f.devices[addr]
	if !ok {
		return Device{}, errors.New("unknown device")
	}
	d.Paired = f.paired[addr]
	d.Connected = f.connected[addr]
	return d, nil
}

func (f *fakeAdapter) Paired(_ context.Context, addr Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paired[addr], nil
}

func (f *fakeAdapter) Connected(_ context.Context, addr Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[addr], nil
}

func (f *fakeAdapter) Pair(_ context.Context, addr Address) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pair " + string(addr))
	if err := f.pairErr[addr]; err != nil {
		return err
	}
	f.paired[addr] = true
	return nil
}

func (f *fakeAdapter) Connect(_ context.Context, addr Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect " + string(addr))
	if err := f.connectErr[addr]; err != nil {
		return err
	}
	f.connected[addr] = true
	return nil
}

func (f *fakeAdapter) Disconnect(_ context.Context, addr Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect " + string(addr))
	if err := f.discErr[addr]; err != nil {
		return err
	}
	f.connected[addr] = false
	return nil
}

var _ Adapter = (*fakeAdapter)(nil)
