package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mil-ad/bluepanel/internal/bluez"
	"github.com/mil-ad/bluepanel/internal/config"
	"github.com/mil-ad/bluepanel/internal/ipc"
	"github.com/mil-ad/bluepanel/internal/logger"
	"github.com/mil-ad/bluepanel/internal/radio"
	"github.com/mil-ad/bluepanel/internal/tui"
)

const usage = "usage: bluepanel <run|status|scan|connect <index>>"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		err = run(cfg)
	case "status":
		err = remote(cfg, ipc.Request{Command: ipc.CommandStatus})
	case "scan":
		err = remote(cfg, ipc.Request{Command: ipc.CommandScan})
	case "connect":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: bluepanel connect <index>")
			os.Exit(1)
		}
		var i int
		i, err = strconv.Atoi(os.Args[2])
		if err != nil {
			err = fmt.Errorf("invalid index %q", os.Args[2])
			break
		}
		err = remote(cfg, ipc.Request{Command: ipc.CommandConnect, Index: &i})
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := bluez.New(cfg.Adapter, log.Named("bluez"))
	if err != nil {
		return err
	}
	defer client.Close()

	panel := radio.New(client,
		radio.WithScanWindow(cfg.ScanWindow),
		radio.WithLogger(log),
	)
	defer panel.Wait()
	defer panel.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := panel.Start(ctx); err != nil {
		log.Warn("read initial power state failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	prog := tea.NewProgram(tui.New(panel, cfg.FrameInterval(), log), tea.WithContext(gctx))
	server := ipc.NewServer(cfg.Socket, panel.Status, tui.Submitter(prog.Send), log.Named("ipc"))

	g.Go(func() error {
		defer stop()
		if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("run panel: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return server.Serve(gctx)
	})

	log.Info("panel started", zap.String("adapter", cfg.Adapter), zap.Duration("scan_window", cfg.ScanWindow))
	return g.Wait()
}

func remote(cfg *config.Config, req ipc.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := ipc.Call(ctx, cfg.Socket, req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}
