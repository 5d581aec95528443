// Package bluez implements radio.Adapter on top of the BlueZ D-Bus API.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/mil-ad/bluepanel/internal/radio"
)

const (
	busName            = "org.bluez"
	adapterIface       = "org.bluez.Adapter1"
	deviceIface        = "org.bluez.Device1"
	propsIface         = "org.freedesktop.DBus.Properties"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"

	errInProgress = "org.bluez.Error.InProgress"
)

var (
	// ErrNotRunning means org.bluez is not on the system bus.
	ErrNotRunning = errors.New("org.bluez not found on system bus, is bluetooth.service running?")
	// ErrStreamClosed means the bus connection went away during discovery.
	ErrStreamClosed = errors.New("bus connection closed")
	// ErrPoweredOff means the adapter was powered off during discovery.
	ErrPoweredOff = errors.New("adapter powered off")
)

// Client wraps a system D-Bus connection for one BlueZ adapter.
type Client struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	log         *zap.Logger
}

var _ radio.Adapter = (*Client)(nil)

// New connects to the system bus and checks that BlueZ is there. adapter is the
// controller name, e.g. "hci0".
func New(adapter string, log *zap.Logger) (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		conn.Close()
		return nil, ErrNotRunning
	}
	return &Client{
		conn:        conn,
		adapterPath: adapterObjectPath(adapter),
		log:         log,
	}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func adapterObjectPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "<adapter>/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapterPath dbus.ObjectPath, addr radio.Address) dbus.ObjectPath {
	escaped := strings.ReplaceAll(string(addr), ":", "_")
	return dbus.ObjectPath(string(adapterPath) + "/dev_" + escaped)
}

// addressFromPath extracts the MAC address from a device object path of adapterPath.
func addressFromPath(adapterPath dbus.ObjectPath, path dbus.ObjectPath) (radio.Address, bool) {
	s := string(path)
	prefix := string(adapterPath) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	rest := s[len(prefix):]
	if strings.Contains(rest, "/") {
		// A child object such as a GATT service.
		return "", false
	}
	addr, err := radio.ParseAddress(strings.ReplaceAll(rest, "_", ":"))
	if err != nil {
		return "", false
	}
	return addr, true
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) {
		return pe.Name
	}
	return ""
}

// property reads a single property and checks its type.
func property[T any](ctx context.Context, obj dbus.BusObject, iface, name string) (T, error) {
	var zero T
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propsIface+".Get", 0, iface, name).Store(&v); err != nil {
		return zero, fmt.Errorf("get %s: %w", name, err)
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s has signature %s, want %T", name, v.Signature(), zero)
	}
	return val, nil
}

// value returns props[name] as a T, or the zero T when it is missing or mistyped.
func value[T any](props map[string]dbus.Variant, name string) T {
	v, _ := props[name].Value().(T)
	return v
}

// Powered reports whether the adapter radio is on.
func (c *Client) Powered(ctx context.Context) (bool, error) {
	return property[bool](ctx, c.conn.Object(busName, c.adapterPath), adapterIface, "Powered")
}

// SetPowered switches the adapter radio.
func (c *Client) SetPowered(ctx context.Context, on bool) error {
	obj := c.conn.Object(busName, c.adapterPath)
	return obj.CallWithContext(ctx, propsIface+".Set", 0, adapterIface, "Powered", dbus.MakeVariant(on)).Err
}

// DeviceProperties fetches the Device1 properties of addr in one call.
func (c *Client) DeviceProperties(ctx context.Context, addr radio.Address) (radio.Device, error) {
	obj := c.conn.Object(busName, deviceObjectPath(c.adapterPath, addr))
	var props map[string]dbus.Variant
	if err := obj.CallWithContext(ctx, propsIface+".GetAll", 0, deviceIface).Store(&props); err != nil {
		return radio.Device{}, fmt.Errorf("get properties of %s: %w", addr, err)
	}
	return deviceFromProps(addr, props), nil
}

func deviceFromProps(addr radio.Address, props map[string]dbus.Variant) radio.Device {
	return radio.Device{
		Address:   addr,
		Name:      value[string](props, "Name"),
		Paired:    value[bool](props, "Paired"),
		Connected: value[bool](props, "Connected"),
	}
}

func (c *Client) Paired(ctx context.Context, addr radio.Address) (bool, error) {
	return property[bool](ctx, c.conn.Object(busName, deviceObjectPath(c.adapterPath, addr)), deviceIface, "Paired")
}

func (c *Client) Connected(ctx context.Context, addr radio.Address) (bool, error) {
	return property[bool](ctx, c.conn.Object(busName, deviceObjectPath(c.adapterPath, addr)), deviceIface, "Connected")
}

func (c *Client) Pair(ctx context.Context, addr radio.Address) error {
	return c.deviceCall(ctx, addr, "Pair")
}

func (c *Client) Connect(ctx context.Context, addr radio.Address) error {
	return c.deviceCall(ctx, addr, "Connect")
}

func (c *Client) Disconnect(ctx context.Context, addr radio.Address) error {
	return c.deviceCall(ctx, addr, "Disconnect")
}

func (c *Client) deviceCall(ctx context.Context, addr radio.Address, method string) error {
	obj := c.conn.Object(busName, deviceObjectPath(c.adapterPath, addr))
	c.log.Debug("device call", zap.String("method", method), zap.Stringer("addr", addr))
	return obj.CallWithContext(ctx, deviceIface+"."+method, 0).Err
}
