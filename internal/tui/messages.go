package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mil-ad/bluepanel/internal/ipc"
)

// frameMsg drives one control loop frame.
type frameMsg time.Time

// RemoteMsg carries a socket request into the control loop. The result is
// written to Reply, which must have room for one value.
type RemoteMsg struct {
	Request ipc.Request
	Reply   chan<- bool
}

// Submitter returns an ipc.Submitter that delivers requests through send,
// normally (*tea.Program).Send.
func Submitter(send func(tea.Msg)) ipc.Submitter {
	return func(ctx context.Context, req ipc.Request) (bool, error) {
		reply := make(chan bool, 1)
		go send(RemoteMsg{Request: req, Reply: reply})
		select {
		case ok := <-reply:
			return ok, nil
		case <-ctx.Done():
			return false, fmt.Errorf("control loop busy: %w", ctx.Err())
		}
	}
}
