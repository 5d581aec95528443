package radio

import (
	"context"
	"errors"
)

// ErrNoDevice is returned when a connect command names an index outside the roster.
var ErrNoDevice = errors.New("no such device")

// EventKind tells what a DeviceEvent reports.
type EventKind int

const (
	DeviceAdded EventKind = iota + 1
	DeviceRemoved
	// DeviceError reports an adapter-level failure of the event stream.
	// It is always the last event delivered.
	DeviceError
)

// DeviceEvent is one item of a discovery stream.
type DeviceEvent struct {
	Kind    EventKind
	Address Address
	Err     error
}

// Adapter is the local Bluetooth radio. Calls are independent; none implies a
// transaction with another.
type Adapter interface {
	Powered(ctx context.Context) (bool, error)
	SetPowered(ctx context.Context, on bool) error

	// DiscoverDevices starts discovery and streams add/remove events until ctx is done,
	// after which discovery is stopped and the channel is closed.
	DiscoverDevices(ctx context.Context) (<-chan DeviceEvent, error)

	// DeviceProperties returns the address, name, paired and connected flags of a device.
	DeviceProperties(ctx context.Context, addr Address) (Device, error)

	Paired(ctx context.Context, addr Address) (bool, error)
	Connected(ctx context.Context, addr Address) (bool, error)
	Pair(ctx context.Context, addr Address) error
	Connect(ctx context.Context, addr Address) error
	Disconnect(ctx context.Context, addr Address) error
}
