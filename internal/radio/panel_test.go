package radio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestPanel(t *testing.T, f *fakeAdapter, options ...Option) *Panel {
	t.Helper()
	options = append([]Option{WithScanWindow(time.Second), WithLogger(zaptest.NewLogger(t))}, options...)
	p := New(f, options...)
	t.Cleanup(func() {
		p.Close()
		p.Wait()
	})
	return p
}

func waitScan(t *testing.T, p *Panel, want ScanStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Status().Scan == want }, waitFor, tick, "scan status never became %s", want)
}

func waitConnect(t *testing.T, p *Panel, want ConnectPhase) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Status().Connect.Phase == want }, waitFor, tick, "connect status never became %s", want)
}

// scanned returns a started, powered panel whose first scan found devices.
func scanned(t *testing.T, devices ...Device) (*Panel, *fakeAdapter) {
	t.Helper()
	f := newFakeAdapter()
	f.powered = true
	for _, d := range devices {
		f.addDevice(d)
	}
	p := newTestPanel(t, f)
	require.NoError(t, p.Start(context.Background()))
	waitScan(t, p, ScanFinished)
	return p, f
}

// waitPublish waits for a roster newer than version with no connection in progress.
func waitPublish(t *testing.T, p *Panel, version uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := p.Status()
		return st.Roster.Version > version && st.Connect.Phase != ConnectConnecting
	}, waitFor, tick, "no roster published after version %d", version)
}

func connectedCount(s *Snapshot) int {
	n := 0
	for _, d := range s.Devices {
		if d.Connected {
			n++
		}
	}
	return n
}

func TestInitialState(t *testing.T) {
	p := newTestPanel(t, newFakeAdapter())
	fr := p.Frame()
	assert.False(t, fr.Powered)
	assert.Equal(t, ScanDisabled, fr.Scan)
	assert.Equal(t, ConnectDisabled, fr.Connect.Phase)
	assert.Equal(t, 0, fr.Roster.Len())
	assert.Equal(t, 0, fr.Selected)
}

func TestStartDoesNotScanWhenPoweredOff(t *testing.T) {
	f := newFakeAdapter()
	p := newTestPanel(t, f)
	require.NoError(t, p.Start(context.Background()))

	assert.False(t, p.RequestScan())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, f.Discoveries())
	assert.Equal(t, ScanDisabled, p.Status().Scan)
}

func TestStartPropagatesPowerError(t *testing.T) {
	f := newFakeAdapter()
	f.powerErr = errors.New("org.bluez.Error.NotReady")
	p := newTestPanel(t, f)
	assert.ErrorIs(t, p.Start(context.Background()), f.powerErr)
}

func TestEmptyScan(t *testing.T) {
	p, _ := scanned(t)

	fr := p.Frame()
	assert.Equal(t, ScanFinished, fr.Scan)
	assert.Equal(t, 0, fr.Roster.Len())

	p.MoveDown()
	p.MoveUp()
	assert.Equal(t, 0, p.Frame().Selected)
	assert.False(t, p.RequestConnect())
	_, ok := p.Frame().Selection()
	assert.False(t, ok)
}

func TestScanTwiceProducesOneCycle(t *testing.T) {
	f := newFakeAdapter()
	f.powered = true
	f.addDevice(Device{Address: addrA})
	release := make(chan struct{})
	f.discoverFn = func(ctx context.Context) (<-chan DeviceEvent, error) {
		ch := make(chan DeviceEvent, 1)
		ch <- DeviceEvent{Kind: DeviceAdded, Address: addrA}
		go func() {
			<-release
			close(ch)
		}()
		return ch, nil
	}
	p := newTestPanel(t, f)

	require.NoError(t, p.Start(context.Background()))
	p.RequestScan()
	waitScan(t, p, ScanScanning)
	assert.False(t, p.RequestScan(), "scan while scanning must be rejected")

	close(release)
	waitScan(t, p, ScanFinished)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.Discoveries())
	assert.Equal(t, ScanFinished, p.Status().Scan)
}

func TestNavigationRequiresFinishedScan(t *testing.T) {
	f := newFakeAdapter()
	f.powered = true
	f.addDevice(Device{Address: addrA})
	f.addDevice(Device{Address: addrB})
	release := make(chan struct{})
	f.discoverFn = func(ctx context.Context) (<-chan DeviceEvent, error) {
		ch := make(chan DeviceEvent)
		go func() {
			<-release
			close(ch)
		}()
		return ch, nil
	}
	p := newTestPanel(t, f)
	// Seed a roster so only the scan status can block navigation.
	p.state.roster.Store([]Device{{Address: addrA}, {Address: addrB}})

	require.NoError(t, p.Start(context.Background()))
	waitScan(t, p, ScanScanning)
	p.MoveDown()
	assert.Equal(t, 0, p.Frame().Selected)
	assert.False(t, p.ConnectIndex(1))

	close(release)
	waitScan(t, p, ScanFinished)
}

func TestNavigationWrapsAndScanResetsSelection(t *testing.T) {
	p, _ := scanned(t, Device{Address: addrA}, Device{Address: addrB}, Device{Address: addrC})

	p.MoveUp()
	assert.Equal(t, 2, p.Frame().Selected)
	p.MoveDown()
	assert.Equal(t, 0, p.Frame().Selected)
	p.MoveDown()
	p.MoveDown()
	fr := p.Frame()
	assert.Equal(t, 2, fr.Selected)
	d, ok := fr.Selection()
	require.True(t, ok)
	assert.Equal(t, addrC, d.Address)

	require.True(t, p.RequestScan())
	assert.Equal(t, 0, p.Frame().Selected)
	waitScan(t, p, ScanFinished)
}

func TestSelectionClampedWhenRosterShrinks(t *testing.T) {
	p, _ := scanned(t, Device{Address: addrA}, Device{Address: addrB}, Device{Address: addrC})
	p.MoveUp()
	require.Equal(t, 2, p.Frame().Selected)

	p.state.roster.Store([]Device{{Address: addrA}, {Address: addrB}})
	fr := p.Frame()
	assert.Equal(t, 1, fr.Selected)
	d, ok := fr.Selection()
	require.True(t, ok)
	assert.Equal(t, addrB, d.Address)
}

func TestConnectSecondDevice(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA}, Device{Address: addrB})

	p.MoveDown()
	require.True(t, p.RequestConnect())
	waitConnect(t, p, ConnectFinished)

	s := p.Status().Roster
	require.Equal(t, 2, s.Len())
	assert.False(t, s.Devices[0].Connected)
	assert.True(t, s.Devices[1].Connected)
	assert.Equal(t, []string{"pair " + string(addrB), "connect " + string(addrB)}, f.Calls())
}

func TestConnectSkipsPairAndConnectWhenAlreadyDone(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA, Paired: true})

	f.mu.Lock()
	f.connected[addrA] = true // connected behind our back after the scan
	f.mu.Unlock()

	require.True(t, p.RequestConnect())
	waitConnect(t, p, ConnectFinished)
	assert.Empty(t, f.Calls())
	assert.True(t, p.Status().Roster.Devices[0].Connected)
}

func TestConnectSwitchesDevices(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA, Paired: true, Connected: true}, Device{Address: addrB, Paired: true})
	assert.Equal(t, ConnectFinished, p.Status().Connect.Phase)

	before := p.Status().Roster.Version
	require.True(t, p.ConnectIndex(1))
	waitPublish(t, p, before)
	assert.Equal(t, ConnectFinished, p.Status().Connect.Phase)

	s := p.Status().Roster
	assert.Equal(t, 1, connectedCount(s))
	assert.True(t, s.Devices[1].Connected)
	assert.Equal(t, []string{"disconnect " + string(addrA), "connect " + string(addrB)}, f.Calls())
}

func TestConnectRejectedWhileConnecting(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA}, Device{Address: addrB})
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	require.True(t, p.ConnectIndex(0))
	waitConnect(t, p, ConnectConnecting)
	assert.False(t, p.ConnectIndex(1))
	assert.False(t, p.RequestConnect())

	close(gate)
	waitConnect(t, p, ConnectFinished)
	time.Sleep(20 * time.Millisecond)

	pairs := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, "pair ") {
			pairs++
		}
	}
	assert.Equal(t, 1, pairs)
	assert.True(t, p.Status().Roster.Devices[0].Connected)
}

func TestPairFailure(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA}, Device{Address: addrB})
	f.pairErr[addrB] = errors.New("org.bluez.Error.AuthenticationRejected")
	before := p.Status().Roster

	require.True(t, p.ConnectIndex(1))
	waitConnect(t, p, ConnectFailed)

	st := p.Status()
	assert.Contains(t, st.Connect.Reason, "pair "+string(addrB))
	assert.Contains(t, st.Connect.Reason, "AuthenticationRejected")
	assert.Equal(t, before.Version, st.Roster.Version, "nothing changed, nothing published")
	assert.Equal(t, 0, connectedCount(st.Roster))
}

func TestFailureAfterDisconnectKeepsDisconnect(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA, Paired: true, Connected: true}, Device{Address: addrB})
	f.pairErr[addrB] = errors.New("Page Timeout")

	require.True(t, p.ConnectIndex(1))
	waitConnect(t, p, ConnectFailed)

	s := p.Status().Roster
	assert.Equal(t, 0, connectedCount(s))
	assert.Equal(t, []string{"disconnect " + string(addrA), "pair " + string(addrB)}, f.Calls())
}

func TestDisconnectFailureAborts(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA, Paired: true, Connected: true}, Device{Address: addrB})
	f.discErr[addrA] = errors.New("org.bluez.Error.Failed")

	require.True(t, p.ConnectIndex(1))
	waitConnect(t, p, ConnectFailed)

	assert.Contains(t, p.Status().Connect.Reason, "disconnect "+string(addrA))
	assert.True(t, p.Status().Roster.Devices[0].Connected)
	assert.Equal(t, []string{"disconnect " + string(addrA)}, f.Calls())
}

func TestConnectIndexOutOfRange(t *testing.T) {
	p, _ := scanned(t, Device{Address: addrA})
	assert.False(t, p.ConnectIndex(1))
	assert.False(t, p.ConnectIndex(-1))

	w := &connectionWorker{adapter: newFakeAdapter(), state: newState(), log: zap.NewNop()}
	_, err := w.switchTo(context.Background(), []Device{{Address: addrA}}, 4)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestPowerOffMidScanDiscardsResults(t *testing.T) {
	f := newFakeAdapter()
	f.powered = true
	f.addDevice(Device{Address: addrA})
	f.discoverFn = func(ctx context.Context) (<-chan DeviceEvent, error) {
		ch := make(chan DeviceEvent, 1)
		ch <- DeviceEvent{Kind: DeviceAdded, Address: addrA}
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch, nil
	}
	core, logs := observer.New(zap.InfoLevel)
	p := newTestPanel(t, f, WithScanWindow(100*time.Millisecond), WithLogger(zap.New(core)))

	require.NoError(t, p.Start(context.Background()))
	waitScan(t, p, ScanScanning)
	require.NoError(t, p.PowerOff(context.Background()))
	assert.Equal(t, ScanDisabled, p.Status().Scan)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("radio changed during scan, discarding results").Len() == 1
	}, waitFor, tick)

	st := p.Status()
	assert.False(t, st.Powered)
	assert.Equal(t, ScanDisabled, st.Scan)
	assert.Equal(t, ConnectDisabled, st.Connect.Phase)
	assert.Equal(t, 0, st.Roster.Len())
	assert.False(t, p.RequestScan())
}

func TestPowerOffDuringConnectKeepsDisabled(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA})
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	require.True(t, p.RequestConnect())
	waitConnect(t, p, ConnectConnecting)
	require.NoError(t, p.PowerOff(context.Background()))
	close(gate)

	p.Close()
	p.Wait()
	st := p.Status()
	assert.Equal(t, ConnectDisabled, st.Connect.Phase)
	assert.Equal(t, ScanDisabled, st.Scan)
	assert.Equal(t, 0, connectedCount(st.Roster))
}

func TestPowerOnScansAgain(t *testing.T) {
	f := newFakeAdapter()
	f.addDevice(Device{Address: addrA})
	p := newTestPanel(t, f)
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.PowerOn(context.Background()))
	assert.True(t, p.Status().Powered)
	waitScan(t, p, ScanFinished)
	assert.Equal(t, 1, p.Status().Roster.Len())

	require.NoError(t, p.PowerOn(context.Background()), "powering an already powered radio is a no-op")
	assert.Equal(t, 1, f.Discoveries())
}

func TestPowerErrorKeepsState(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA})
	f.mu.Lock()
	f.powerErr = errors.New("org.bluez.Error.Busy")
	f.mu.Unlock()

	err := p.PowerOff(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power off")
	assert.True(t, p.Status().Powered)
	assert.Equal(t, ScanFinished, p.Status().Scan)
}

func TestAtMostOneConnectedAcrossSwitches(t *testing.T) {
	p, _ := scanned(t, Device{Address: addrA}, Device{Address: addrB}, Device{Address: addrC})

	for _, i := range []int{0, 2, 1, 1, 0} {
		before := p.Status().Roster.Version
		require.True(t, p.ConnectIndex(i), "connect %d", i)
		waitPublish(t, p, before)

		st := p.Status()
		require.Equal(t, ConnectFinished, st.Connect.Phase)
		require.Equal(t, 1, connectedCount(st.Roster))
		require.True(t, st.Roster.Devices[i].Connected)
	}
}

// untilWindowCloses streams one add event and holds the stream open for the
// whole scan window.
func untilWindowCloses(addr Address) func(ctx context.Context) (<-chan DeviceEvent, error) {
	return func(ctx context.Context) (<-chan DeviceEvent, error) {
		ch := make(chan DeviceEvent, 1)
		ch <- DeviceEvent{Kind: DeviceAdded, Address: addr}
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch, nil
	}
}

func TestPowerCycleDuringScanStillScans(t *testing.T) {
	f := newFakeAdapter()
	f.powered = true
	f.addDevice(Device{Address: addrA})
	f.discoverFn = untilWindowCloses(addrA)
	p := newTestPanel(t, f, WithScanWindow(200*time.Millisecond))

	require.NoError(t, p.Start(context.Background()))
	waitScan(t, p, ScanScanning)

	ctx := context.Background()
	require.NoError(t, p.PowerOff(ctx))
	require.NoError(t, p.PowerOn(ctx))
	require.NoError(t, p.PowerOff(ctx))
	require.NoError(t, p.PowerOn(ctx))

	waitScan(t, p, ScanFinished)
	st := p.Status()
	assert.True(t, st.Powered)
	assert.Equal(t, 1, st.Roster.Len())
	assert.Equal(t, 2, f.Discoveries())
}

func TestPowerOffDiscardsQueuedConnect(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA}, Device{Address: addrB})
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	require.True(t, p.ConnectIndex(0))
	waitConnect(t, p, ConnectConnecting)
	p.state.connect.Store(ConnectState{Phase: ConnectFinished})
	require.True(t, p.ConnectIndex(1), "second command waits in the slot")

	require.NoError(t, p.PowerOff(context.Background()))
	select {
	case cmd := <-p.connects:
		t.Fatalf("command for index %d still queued after power off", cmd.index)
	default:
	}
	close(gate)
}

func TestConnectPublishWinsOverConcurrentScan(t *testing.T) {
	p, f := scanned(t, Device{Address: addrA}, Device{Address: addrB})
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	require.True(t, p.ConnectIndex(1))
	waitConnect(t, p, ConnectConnecting)

	// A scan finishes with a different roster while the pair is held.
	f.mu.Lock()
	f.addDevice(Device{Address: addrC})
	f.mu.Unlock()
	require.True(t, p.RequestScan())
	require.Eventually(t, func() bool {
		st := p.Status()
		return st.Scan == ScanFinished && st.Roster.Len() == 3
	}, waitFor, tick)

	close(gate)
	waitConnect(t, p, ConnectFinished)

	st := p.Status()
	assert.Equal(t, []Device{{Address: addrA}, {Address: addrB, Connected: true}}, st.Roster.Devices)
	assert.Equal(t, 1, connectedCount(st.Roster))
	assert.Equal(t, ConnectFinished, st.Connect.Phase)
	assert.Equal(t, []string{"pair " + string(addrB), "connect " + string(addrB)}, f.Calls())
}

func TestNavigationUsesOneSnapshot(t *testing.T) {
	p, _ := scanned(t)

	n, ok := p.navigable()
	assert.Equal(t, 0, n)
	assert.False(t, ok)
	p.MoveUp()
	assert.Equal(t, 0, p.Frame().Selected)

	p.state.roster.Store([]Device{{Address: addrA}, {Address: addrB}, {Address: addrC}})
	n, ok = p.navigable()
	assert.Equal(t, 3, n)
	assert.True(t, ok)
	p.MoveUp()
	assert.Equal(t, 2, p.Frame().Selected)
}
