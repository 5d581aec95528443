// Package radio drives a single Bluetooth adapter for a front-panel applet.
//
// Two background workers, discovery and connection, each own one long-running
// goroutine fed by a single-slot command channel. They publish into a copy-on-write
// roster and two status cells which the control loop reads every frame without
// blocking. Panel is the control loop's side of that contract.
package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Status is the published state, safe to read from any goroutine.
type Status struct {
	Powered bool
	Scan    ScanStatus
	Connect ConnectState
	Roster  *Snapshot
}

// Frame is everything the control loop renders for one frame.
type Frame struct {
	Status
	Selected int
}

// Selection returns the device under the cursor.
func (f Frame) Selection() (Device, bool) {
	if f.Selected < 0 || f.Selected >= f.Roster.Len() {
		return Device{}, false
	}
	return f.Roster.Devices[f.Selected], true
}

// Option configures a Panel.
type Option func(*Panel)

// WithScanWindow sets how long each scan collects device events.
func WithScanWindow(d time.Duration) Option {
	return func(p *Panel) {
		p.window = d
	}
}

// WithLogger sets the logger; workers log through named children of it.
func WithLogger(l *zap.Logger) Option {
	return func(p *Panel) {
		p.log = l
	}
}

// Panel is the control-loop API. Its command and navigation methods must be called
// from a single goroutine (the control loop); Status is safe from any goroutine.
//
// Commands are fire-and-forget over channels with room for one: a command issued
// while one is already pending is dropped. That is the debounce, not backpressure.
type Panel struct {
	adapter Adapter
	state   *state
	window  time.Duration
	log     *zap.Logger

	scans    chan scanCommand
	connects chan connectCommand

	powered  *atomic.Bool
	selected int

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Panel and starts both workers.
func New(adapter Adapter, options ...Option) *Panel {
	p := &Panel{
		adapter:  adapter,
		state:    newState(),
		window:   DefaultScanWindow,
		log:      zap.NewNop(),
		scans:    make(chan scanCommand, 1),
		connects: make(chan connectCommand, 1),
		powered:  atomic.NewBool(false),
	}
	for _, option := range options {
		option(p)
	}

	discovery := &discoveryWorker{
		adapter:  adapter,
		state:    p.state,
		window:   p.window,
		log:      p.log.Named("discovery"),
		commands: p.scans,
	}
	connection := &connectionWorker{
		adapter:  adapter,
		state:    p.state,
		log:      p.log.Named("connection"),
		commands: p.connects,
	}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		discovery.run()
	}()
	go func() {
		defer p.wg.Done()
		connection.run()
	}()
	return p
}

// Start reads the adapter's power state and, if it is on, issues the first scan.
func (p *Panel) Start(ctx context.Context) error {
	powered, err := p.adapter.Powered(ctx)
	if err != nil {
		return fmt.Errorf("read adapter power: %w", err)
	}
	p.powered.Store(powered)
	if powered {
		p.RequestScan()
	}
	return nil
}

// Close stops both workers once their current operation completes. The control
// loop must not issue commands after Close.
func (p *Panel) Close() {
	p.closeOnce.Do(func() {
		close(p.scans)
		close(p.connects)
	})
}

// Wait blocks until both workers have returned.
func (p *Panel) Wait() {
	p.wg.Wait()
}

// Status returns the latest published state.
func (p *Panel) Status() Status {
	return Status{
		Powered: p.powered.Load(),
		Scan:    p.state.scan.Load(),
		Connect: p.state.connect.Load(),
		Roster:  p.state.roster.Load(),
	}
}

// Frame returns the state for one frame and clamps the selection into the roster
// it returns. The snapshot stays valid for the whole frame even if a worker
// publishes meanwhile.
func (p *Panel) Frame() Frame {
	s := p.Status()
	p.selected = clamp(p.selected, s.Roster.Len())
	return Frame{Status: s, Selected: p.selected}
}

// RequestScan issues a scan command. It is rejected while the radio is off or a scan
// is running, and dropped if a scan command is already pending.
func (p *Panel) RequestScan() bool {
	if !p.powered.Load() || p.state.scan.Load() == ScanScanning {
		return false
	}
	// Held so the worker cannot publish before the connect status is cleared.
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	select {
	case p.scans <- scanCommand{epoch: p.state.epoch.Load()}:
	default:
		return false
	}
	p.selected = 0
	p.state.connect.Store(ConnectState{Phase: ConnectDisabled})
	return true
}

// RequestConnect issues a connect command for the selected device.
func (p *Panel) RequestConnect() bool {
	return p.ConnectIndex(clamp(p.selected, p.state.roster.Load().Len()))
}

// ConnectIndex issues a connect command for roster index i. It is rejected unless
// the last scan finished, the roster is not empty and no connection is in progress.
func (p *Panel) ConnectIndex(i int) bool {
	n, ok := p.navigable()
	if !ok || p.state.connect.Load().Phase == ConnectConnecting {
		return false
	}
	if i < 0 || i >= n {
		return false
	}
	select {
	case p.connects <- connectCommand{index: i, epoch: p.state.epoch.Load()}:
		return true
	default:
		return false
	}
}

// MoveUp moves the selection up, wrapping to the last device.
func (p *Panel) MoveUp() {
	n, ok := p.navigable()
	if !ok {
		return
	}
	p.selected = clamp(p.selected, n)
	if p.selected == 0 {
		p.selected = n - 1
	} else {
		p.selected--
	}
}

// MoveDown moves the selection down, wrapping to the first device.
func (p *Panel) MoveDown() {
	n, ok := p.navigable()
	if !ok {
		return
	}
	p.selected = clamp(p.selected, n)
	if p.selected == n-1 {
		p.selected = 0
	} else {
		p.selected++
	}
}

// PowerOn powers the adapter and starts a scan. Both statuses are reset first so
// results of work issued before the power change are never shown.
func (p *Panel) PowerOn(ctx context.Context) error {
	if p.powered.Load() {
		return nil
	}
	if err := p.adapter.SetPowered(ctx, true); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	p.log.Info("bluetooth powered on")
	p.powerChanged(true)
	p.RequestScan()
	return nil
}

// PowerOff powers the adapter down and resets both statuses.
func (p *Panel) PowerOff(ctx context.Context) error {
	if !p.powered.Load() {
		return nil
	}
	if err := p.adapter.SetPowered(ctx, false); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	p.log.Info("bluetooth powered off")
	p.powerChanged(false)
	return nil
}

func (p *Panel) powerChanged(on bool) {
	p.state.reset(p.discardPending)
	p.powered.Store(on)
	p.selected = 0
}

// discardPending empties both command slots. A command queued before a power
// change would be dropped by its worker and keep the slot full, so the scan
// issued after the change would be lost.
func (p *Panel) discardPending() {
	select {
	case <-p.scans:
	default:
	}
	select {
	case <-p.connects:
	default:
	}
}

// navigable returns the length of the roster and whether it may be browsed: only
// a finished, non-empty one. The length comes from the same snapshot.
func (p *Panel) navigable() (int, bool) {
	n := p.state.roster.Load().Len()
	return n, p.state.scan.Load() == ScanFinished && n > 0
}

func clamp(i, n int) int {
	switch {
	case n <= 0 || i < 0:
		return 0
	case i >= n:
		return n - 1
	}
	return i
}
