// Package tui is the control loop: a bubbletea program that renders published
// radio state once per frame and turns key presses into panel commands.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mil-ad/bluepanel/internal/ipc"
	"github.com/mil-ad/bluepanel/internal/radio"
)

const (
	powerTimeout = 5 * time.Second
	exitDelay    = 300 * time.Millisecond
)

// Panel is the part of *radio.Panel the control loop drives.
type Panel interface {
	Frame() radio.Frame
	RequestScan() bool
	RequestConnect() bool
	ConnectIndex(i int) bool
	MoveUp()
	MoveDown()
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Model is the root bubbletea model.
type Model struct {
	panel    Panel
	interval time.Duration
	log      *zap.Logger

	keys    KeyMap
	help    help.Model
	spinner spinner.Spinner
	frames  int

	err     error // last power request failure
	exiting bool
}

// New creates the model. interval is the frame period.
func New(panel Panel, interval time.Duration, log *zap.Logger) *Model {
	h := help.New()
	h.ShowAll = false

	return &Model{
		panel:    panel,
		interval: interval,
		log:      log,
		keys:     DefaultKeyMap(),
		help:     h,
		spinner:  spinner.Dot,
	}
}

// Init starts the frame clock.
func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frames++
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case RemoteMsg:
		msg.Reply <- m.remote(msg.Request)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.exiting {
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.exiting = true
		m.log.Info("exiting")
		return tea.Tick(exitDelay, func(time.Time) tea.Msg { return tea.Quit() })

	case key.Matches(msg, m.keys.PowerOn):
		m.power(true)

	case key.Matches(msg, m.keys.PowerOff):
		m.power(false)

	case key.Matches(msg, m.keys.Up):
		m.panel.MoveUp()

	case key.Matches(msg, m.keys.Down):
		m.panel.MoveDown()

	case key.Matches(msg, m.keys.Connect):
		if !m.panel.RequestConnect() {
			m.log.Debug("connect command dropped")
		}

	case key.Matches(msg, m.keys.Rescan):
		if !m.panel.RequestScan() {
			m.log.Debug("scan command dropped")
		}
	}
	return nil
}

// power switches the radio synchronously; the control loop stalls for the
// duration of the call.
func (m *Model) power(on bool) {
	ctx, cancel := context.WithTimeout(context.Background(), powerTimeout)
	defer cancel()

	var err error
	if on {
		m.log.Info("open bluetooth")
		err = m.panel.PowerOn(ctx)
	} else {
		m.log.Info("close bluetooth")
		err = m.panel.PowerOff(ctx)
	}
	if err != nil {
		m.log.Error("set power failed", zap.Bool("on", on), zap.Error(err))
	}
	m.err = err
}

func (m *Model) remote(req ipc.Request) bool {
	if m.exiting {
		return false
	}
	switch req.Command {
	case ipc.CommandScan:
		return m.panel.RequestScan()
	case ipc.CommandConnect:
		return req.Index != nil && m.panel.ConnectIndex(*req.Index)
	}
	return false
}

// View renders one frame from a single read of the published state.
func (m *Model) View() string {
	if m.exiting {
		return frameStyle.Render(textError.Render("Exiting…"))
	}

	f := m.panel.Frame()
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bluetooth") + "  ")
	if f.Powered {
		b.WriteString(textSuccess.Render("on"))
	} else {
		b.WriteString(textError.Render("off"))
	}
	b.WriteString("\n")

	b.WriteString(m.scanLine(f))
	b.WriteString("\n")

	if f.Scan == radio.ScanFinished && f.Roster.Len() > 0 {
		if d, ok := f.Selection(); ok {
			b.WriteString(textMuted.Render("Select a device, then connect:"))
			b.WriteString("\n")
			b.WriteString(fmt.Sprintf("(%d/%d) %s", f.Selected+1, f.Roster.Len(), deviceStyle.Render(d.DisplayName())))
			b.WriteString("\n")
		}
		b.WriteString(m.connectLine(f.Connect))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(textError.Render("Radio error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return frameStyle.Render(b.String())
}

func (m *Model) scanLine(f radio.Frame) string {
	switch f.Scan {
	case radio.ScanDisabled:
		return " "
	case radio.ScanScanning:
		return m.spin() + " " + textInfo.Render("Scanning…")
	case radio.ScanFinished:
		line := textSuccess.Render("Scan finished") + "  "
		if d, ok := f.Roster.Connected(); ok {
			return line + "Connected: " + deviceStyle.Render(d.DisplayName())
		}
		return line + textMuted.Render("No device connected")
	case radio.ScanFailed:
		return textError.Render("Scan failed")
	}
	return f.Scan.String()
}

func (m *Model) connectLine(s radio.ConnectState) string {
	switch s.Phase {
	case radio.ConnectDisabled:
		return " "
	case radio.ConnectConnecting:
		return m.spin() + " " + textInfo.Render("Connecting…")
	case radio.ConnectFinished:
		return textSuccess.Render("Connected")
	case radio.ConnectFailed:
		return textError.Render("Connect failed: " + s.Reason)
	}
	return s.String()
}

// spin picks the spinner glyph for the current frame.
func (m *Model) spin() string {
	elapsed := time.Duration(m.frames) * m.interval
	i := int(elapsed/m.spinner.FPS) % len(m.spinner.Frames)
	return spinnerStyle.Render(m.spinner.Frames[i])
}
