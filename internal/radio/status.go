package radio

import (
	"fmt"

	"go.uber.org/atomic"
)

// ScanStatus is the lifecycle of the discovery worker.
type ScanStatus int32

const (
	ScanDisabled ScanStatus = iota
	ScanScanning
	ScanFinished
	ScanFailed
)

func (s ScanStatus) String() string {
	switch s {
	case ScanDisabled:
		return "disabled"
	case ScanScanning:
		return "scanning"
	case ScanFinished:
		return "finished"
	case ScanFailed:
		return "failed"
	}
	return fmt.Sprintf("ScanStatus(%d)", int32(s))
}

// ConnectPhase is the lifecycle of the connection worker.
type ConnectPhase int32

const (
	ConnectDisabled ConnectPhase = iota
	ConnectConnecting
	ConnectFinished
	ConnectFailed
)

func (p ConnectPhase) String() string {
	switch p {
	case ConnectDisabled:
		return "disabled"
	case ConnectConnecting:
		return "connecting"
	case ConnectFinished:
		return "finished"
	case ConnectFailed:
		return "failed"
	}
	return fmt.Sprintf("ConnectPhase(%d)", int32(p))
}

// ConnectState is a ConnectPhase plus, for ConnectFailed, a human readable reason.
type ConnectState struct {
	Phase  ConnectPhase
	Reason string
}

func connectFailed(err error) ConnectState {
	return ConnectState{Phase: ConnectFailed, Reason: err.Error()}
}

func (s ConnectState) String() string {
	if s.Phase == ConnectFailed {
		return fmt.Sprintf("failed: %s", s.Reason)
	}
	return s.Phase.String()
}

type scanCell struct{ v *atomic.Int32 }

func newScanCell() scanCell { return scanCell{v: atomic.NewInt32(int32(ScanDisabled))} }

func (c scanCell) Load() ScanStatus   { return ScanStatus(c.v.Load()) }
func (c scanCell) Store(s ScanStatus) { c.v.Store(int32(s)) }

type connectCell struct{ v *atomic.Pointer[ConnectState] }

func newConnectCell() connectCell {
	return connectCell{v: atomic.NewPointer(&ConnectState{Phase: ConnectDisabled})}
}

func (c connectCell) Load() ConnectState   { return *c.v.Load() }
func (c connectCell) Store(s ConnectState) { c.v.Store(&s) }
