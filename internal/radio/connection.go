package radio

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type connectCommand struct {
	index int
	epoch uint64
}

type connectionWorker struct {
	adapter  Adapter
	state    *state
	log      *zap.Logger
	commands <-chan connectCommand
}

func (w *connectionWorker) run() {
	for cmd := range w.commands {
		w.connect(cmd)
	}
	w.log.Debug("connection worker stopped")
}

func (w *connectionWorker) connect(cmd connectCommand) {
	if !w.state.commit(cmd.epoch, func() { w.state.connect.Store(ConnectState{Phase: ConnectConnecting}) }) {
		w.log.Debug("dropping connect command from a previous radio epoch")
		return
	}

	devices := w.state.roster.Load().Clone()
	changed, err := w.switchTo(context.Background(), devices, cmd.index)
	if err != nil {
		w.log.Error("connect device failed", zap.Int("index", cmd.index), zap.Error(err))
		// A disconnect that already went through is kept.
		w.state.commit(cmd.epoch, func() {
			if changed {
				w.state.roster.Store(devices)
			}
			w.state.connect.Store(connectFailed(err))
		})
		return
	}

	published := w.state.commit(cmd.epoch, func() {
		w.state.roster.Store(devices)
		w.state.connect.Store(ConnectState{Phase: ConnectFinished})
	})
	if published {
		w.log.Info("device connected", zap.Stringer("addr", devices[cmd.index].Address))
	}
}

// switchTo disconnects every connected device and then pairs and connects
// devices[index], updating Connected flags in place. changed reports whether any
// flag in devices was modified, including on error.
func (w *connectionWorker) switchTo(ctx context.Context, devices []Device, index int) (changed bool, err error) {
	if index < 0 || index >= len(devices) {
		return false, fmt.Errorf("index %d of %d: %w", index, len(devices), ErrNoDevice)
	}

	for i := range devices {
		if !devices[i].Connected {
			continue
		}
		if err := w.adapter.Disconnect(ctx, devices[i].Address); err != nil {
			return changed, fmt.Errorf("disconnect %s: %w", devices[i].Address, err)
		}
		w.log.Debug("disconnected", zap.Stringer("addr", devices[i].Address))
		devices[i].Connected = false
		changed = true
	}

	target := devices[index].Address

	paired, err := w.adapter.Paired(ctx, target)
	if err != nil {
		return changed, fmt.Errorf("query paired %s: %w", target, err)
	}
	if !paired {
		if err := w.adapter.Pair(ctx, target); err != nil {
			return changed, fmt.Errorf("pair %s: %w", target, err)
		}
	}

	connected, err := w.adapter.Connected(ctx, target)
	if err != nil {
		return changed, fmt.Errorf("query connected %s: %w", target, err)
	}
	if !connected {
		if err := w.adapter.Connect(ctx, target); err != nil {
			return changed, fmt.Errorf("connect %s: %w", target, err)
		}
	}

	devices[index].Connected = true
	return true, nil
}
