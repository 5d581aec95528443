package bluez

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/mil-ad/bluepanel/internal/radio"
)

const (
	interfacesAdded   = objectManagerIface + ".InterfacesAdded"
	interfacesRemoved = objectManagerIface + ".InterfacesRemoved"
	propsChanged      = propsIface + ".PropertiesChanged"

	stopTimeout = 2 * time.Second
)

// DiscoverDevices subscribes to object add/remove signals, reports devices BlueZ
// already knows about, then starts discovery. Events flow until ctx is done.
func (c *Client) DiscoverDevices(ctx context.Context) (<-chan radio.DeviceEvent, error) {
	matches := c.matches()
	for i, m := range matches {
		if err := c.conn.AddMatchSignal(m...); err != nil {
			c.removeMatches(matches[:i])
			return nil, fmt.Errorf("subscribe to signals: %w", err)
		}
	}
	signals := make(chan *dbus.Signal, 64)
	c.conn.Signal(signals)

	known, err := c.managedDevices(ctx)
	if err != nil {
		c.unsubscribe(signals, matches)
		return nil, err
	}

	call := c.conn.Object(busName, c.adapterPath).CallWithContext(ctx, adapterIface+".StartDiscovery", 0)
	if call.Err != nil && errorName(call.Err) != errInProgress {
		c.unsubscribe(signals, matches)
		return nil, fmt.Errorf("start discovery: %w", call.Err)
	}

	out := make(chan radio.DeviceEvent)
	go c.forward(ctx, signals, matches, known, out)
	return out, nil
}

func (c *Client) matches() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{dbus.WithMatchSender(busName), dbus.WithMatchInterface(objectManagerIface), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchSender(busName), dbus.WithMatchInterface(objectManagerIface), dbus.WithMatchMember("InterfacesRemoved")},
		{dbus.WithMatchSender(busName), dbus.WithMatchObjectPath(c.adapterPath), dbus.WithMatchInterface(propsIface), dbus.WithMatchMember("PropertiesChanged")},
	}
}

func (c *Client) removeMatches(matches [][]dbus.MatchOption) {
	for _, m := range matches {
		if err := c.conn.RemoveMatchSignal(m...); err != nil {
			c.log.Debug("remove signal match failed", zap.Error(err))
		}
	}
}

func (c *Client) unsubscribe(signals chan *dbus.Signal, matches [][]dbus.MatchOption) {
	c.conn.RemoveSignal(signals)
	c.removeMatches(matches)
}

func (c *Client) stopDiscovery() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	call := c.conn.Object(busName, c.adapterPath).CallWithContext(ctx, adapterIface+".StopDiscovery", 0)
	if call.Err != nil {
		c.log.Debug("stop discovery failed", zap.Error(call.Err))
	}
}

func (c *Client) forward(ctx context.Context, signals chan *dbus.Signal, matches [][]dbus.MatchOption, known []radio.Address, out chan<- radio.DeviceEvent) {
	defer close(out)
	defer c.unsubscribe(signals, matches)
	defer c.stopDiscovery()

	send := func(ev radio.DeviceEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for _, addr := range known {
		if !send(radio.DeviceEvent{Kind: radio.DeviceAdded, Address: addr}) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				send(radio.DeviceEvent{Kind: radio.DeviceError, Err: ErrStreamClosed})
				return
			}
			ev, ok := translateSignal(c.adapterPath, sig)
			if !ok {
				continue
			}
			c.log.Debug("device event", zap.Int("kind", int(ev.Kind)), zap.Stringer("addr", ev.Address))
			if !send(ev) || ev.Kind == radio.DeviceError {
				return
			}
		}
	}
}

// managedDevices lists the devices of this adapter BlueZ already has objects for.
func (c *Client) managedDevices(ctx context.Context) ([]radio.Address, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := c.conn.Object(busName, "/").CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0)
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return devicesOf(c.adapterPath, objects), nil
}

func devicesOf(adapterPath dbus.ObjectPath, objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []radio.Address {
	var paths []dbus.ObjectPath
	for path, ifaces := range objects {
		if _, ok := ifaces[deviceIface]; ok {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)

	var out []radio.Address
	for _, path := range paths {
		if addr, ok := addressFromPath(adapterPath, path); ok {
			out = append(out, addr)
		}
	}
	return out
}

// translateSignal maps an ObjectManager or adapter property signal to a device
// event. Signals that concern other objects are skipped.
func translateSignal(adapterPath dbus.ObjectPath, sig *dbus.Signal) (radio.DeviceEvent, bool) {
	switch sig.Name {
	case interfacesAdded:
		var path dbus.ObjectPath
		var ifaces map[string]map[string]dbus.Variant
		if err := dbus.Store(sig.Body, &path, &ifaces); err != nil {
			return radio.DeviceEvent{}, false
		}
		if _, ok := ifaces[deviceIface]; !ok {
			return radio.DeviceEvent{}, false
		}
		addr, ok := addressFromPath(adapterPath, path)
		if !ok {
			return radio.DeviceEvent{}, false
		}
		return radio.DeviceEvent{Kind: radio.DeviceAdded, Address: addr}, true

	case interfacesRemoved:
		var path dbus.ObjectPath
		var ifaces []string
		if err := dbus.Store(sig.Body, &path, &ifaces); err != nil {
			return radio.DeviceEvent{}, false
		}
		if !slices.Contains(ifaces, deviceIface) {
			return radio.DeviceEvent{}, false
		}
		addr, ok := addressFromPath(adapterPath, path)
		if !ok {
			return radio.DeviceEvent{}, false
		}
		return radio.DeviceEvent{Kind: radio.DeviceRemoved, Address: addr}, true

	case propsChanged:
		if sig.Path != adapterPath || len(sig.Body) < 2 {
			return radio.DeviceEvent{}, false
		}
		// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
		iface, ok := sig.Body[0].(string)
		if !ok || !strings.EqualFold(iface, adapterIface) {
			return radio.DeviceEvent{}, false
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return radio.DeviceEvent{}, false
		}
		powered, ok := changed["Powered"]
		if !ok {
			return radio.DeviceEvent{}, false
		}
		if on, ok := powered.Value().(bool); ok && !on {
			return radio.DeviceEvent{Kind: radio.DeviceError, Err: ErrPoweredOff}, true
		}
	}
	return radio.DeviceEvent{}, false
}
