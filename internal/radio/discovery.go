package radio

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultScanWindow is how long a scan collects device events before publishing.
const DefaultScanWindow = 6 * time.Second

type scanCommand struct {
	epoch uint64
}

type discoveryWorker struct {
	adapter  Adapter
	state    *state
	window   time.Duration
	log      *zap.Logger
	commands <-chan scanCommand
}

func (w *discoveryWorker) run() {
	for cmd := range w.commands {
		for {
			w.scan(cmd.epoch)
			next, ok := w.pending(cmd.epoch)
			if !ok {
				break
			}
			cmd = next
		}
	}
	w.log.Debug("discovery worker stopped")
}

// pending drains scan commands that were queued under epoch while a cycle ran and
// returns the first one issued under another epoch, if any.
func (w *discoveryWorker) pending(epoch uint64) (scanCommand, bool) {
	for {
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				return scanCommand{}, false
			}
			if cmd.epoch != epoch {
				return cmd, true
			}
			w.log.Debug("coalesced scan command")
		default:
			return scanCommand{}, false
		}
	}
}

func (w *discoveryWorker) scan(epoch uint64) {
	if !w.state.commit(epoch, func() { w.state.scan.Store(ScanScanning) }) {
		w.log.Debug("dropping scan command from a previous radio epoch")
		return
	}

	start := time.Now()
	devices, err := w.collect()
	if err != nil {
		w.log.Error("discover devices failed", zap.Error(err))
		w.state.commit(epoch, func() { w.state.scan.Store(ScanFailed) })
		return
	}

	published := w.state.commit(epoch, func() {
		for _, d := range devices {
			if d.Connected {
				w.state.connect.Store(ConnectState{Phase: ConnectFinished})
				break
			}
		}
		w.state.roster.Store(devices)
		w.state.scan.Store(ScanFinished)
	})
	if !published {
		w.log.Info("radio changed during scan, discarding results", zap.Int("devices", len(devices)))
		return
	}
	w.log.Info("scan finished", zap.Int("devices", len(devices)), zap.Duration("took", time.Since(start)))
}

// collect applies device events for one scan window. Events still queued when the
// window closes are not applied.
func (w *discoveryWorker) collect() ([]Device, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.window)
	defer cancel()

	events, err := w.adapter.DiscoverDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("open device events: %w", err)
	}

	var devices []Device
	for {
		select {
		case <-ctx.Done():
			return devices, nil
		case ev, ok := <-events:
			if !ok || ctx.Err() != nil {
				return devices, nil
			}
			switch ev.Kind {
			case DeviceAdded:
				d, err := w.adapter.DeviceProperties(ctx, ev.Address)
				if err != nil {
					w.log.Warn("get device properties failed", zap.Stringer("addr", ev.Address), zap.Error(err))
					continue
				}
				d.Address = ev.Address
				devices = upsertDevice(devices, d)
			case DeviceRemoved:
				devices = removeDevice(devices, ev.Address)
			case DeviceError:
				return nil, fmt.Errorf("device events: %w", ev.Err)
			}
		}
	}
}

func upsertDevice(devices []Device, d Device) []Device {
	for i := range devices {
		if devices[i].Address == d.Address {
			devices[i] = d
			return devices
		}
	}
	return append(devices, d)
}

func removeDevice(devices []Device, addr Address) []Device {
	for i := range devices {
		if devices[i].Address == addr {
			return append(devices[:i], devices[i+1:]...)
		}
	}
	return devices
}
