package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mil-ad/bluepanel/internal/radio"
)

// DefaultSubmitTimeout bounds how long a command waits for the control loop.
const DefaultSubmitTimeout = 2 * time.Second

// StatusFunc returns the published panel state. It must not block.
type StatusFunc func() radio.Status

// Submitter hands a scan or connect request to the control loop and reports
// whether the command was accepted.
type Submitter func(ctx context.Context, req Request) (bool, error)

// Server answers requests on a unix socket.
type Server struct {
	path    string
	status  StatusFunc
	submit  Submitter
	timeout time.Duration
	log     *zap.Logger

	wg sync.WaitGroup
}

// NewServer creates a server for the socket at path.
func NewServer(path string, status StatusFunc, submit Submitter, log *zap.Logger) *Server {
	return &Server{
		path:    path,
		status:  status,
		submit:  submit,
		timeout: DefaultSubmitTimeout,
		log:     log,
	}
}

// Serve listens on the socket until ctx is done. A stale socket file is removed
// first and the socket is removed again on return.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	defer os.Remove(s.path)
	if err := os.Chmod(s.path, 0o700); err != nil {
		ln.Close()
		return fmt.Errorf("chmod %s: %w", s.path, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("listening", zap.String("socket", s.path))
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.timeout + time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.reply(conn, Response{Error: "invalid request: " + err.Error()})
		return
	}
	s.reply(conn, s.handleRequest(ctx, req))
}

func (s *Server) reply(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Debug("write response failed", zap.Error(err))
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Command {
	case CommandStatus:
		return StatusResponse(s.status())

	case CommandScan, CommandConnect:
		if req.Command == CommandConnect && req.Index == nil {
			return Response{Error: "device index is required"}
		}
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		accepted, err := s.submit(ctx, req)
		if err != nil {
			s.log.Warn("submit command failed", zap.String("command", req.Command), zap.Error(err))
			return Response{Error: err.Error()}
		}
		s.log.Debug("remote command", zap.String("command", req.Command), zap.Bool("accepted", accepted))
		resp := StatusResponse(s.status())
		resp.Accepted = accepted
		return resp

	default:
		return Response{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}
