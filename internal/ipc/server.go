package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"sxvrs/internal/daemon"
	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/logs"
	"sxvrs/internal/recorder"
)

// ServiceName is the RPC receiver name clients address.
const ServiceName = "SXVRS"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. shutdown is
// invoked when a client asks the daemon process to exit; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx, shutdown: shutdown}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale socket may confuse the next sxvrs start"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("camera start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "cameras started"
	s.log().Info("cameras started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("camera stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("cameras stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	if s.shutdown == nil {
		return errors.New("daemon does not accept shutdown requests")
	}
	s.log().Info("daemon shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	// Reply before the listener goes away.
	time.AfterFunc(50*time.Millisecond, s.shutdown)
	resp.Accepted = true
	return nil
}

func (s *service) Restart(_ RestartRequest, resp *RestartResponse) error {
	s.daemon.RequestRestart("ipc")
	resp.Accepted = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) List(_ ListRequest, resp *ListResponse) error {
	resp.Cameras = s.daemon.Cameras()
	resp.Disabled = s.daemon.Disabled()
	return nil
}

func (s *service) Camera(req CameraRequest, resp *CameraResponse) error {
	return s.camera(resp, req.Name, s.daemon.Camera)
}

func (s *service) RecordStart(req CameraRequest, resp *CameraResponse) error {
	return s.command(resp, req.Name, "record_start", s.daemon.RecordStart)
}

func (s *service) RecordStop(req CameraRequest, resp *CameraResponse) error {
	return s.command(resp, req.Name, "record_stop", s.daemon.RecordStop)
}

func (s *service) WatcherStart(req CameraRequest, resp *CameraResponse) error {
	return s.command(resp, req.Name, "watcher_start", s.daemon.WatcherStart)
}

func (s *service) WatcherStop(req CameraRequest, resp *CameraResponse) error {
	return s.command(resp, req.Name, "watcher_stop", s.daemon.WatcherStop)
}

func (s *service) command(resp *CameraResponse, name, event string, fn func(string) (recorder.Status, error)) error {
	if err := s.camera(resp, name, fn); err != nil {
		return err
	}
	s.log().Info("camera command applied",
		logging.String(logging.FieldCamera, resp.Camera.Name),
		logging.String(logging.FieldEventType, event),
	)
	return nil
}

func (s *service) camera(resp *CameraResponse, name string, fn func(string) (recorder.Status, error)) error {
	st, err := fn(name)
	if err != nil {
		return err
	}
	resp.Camera = st
	return nil
}

func (s *service) Reap(req CameraRequest, resp *ReapResponse) error {
	result, err := s.daemon.Reap(s.ctx, req.Name)
	if err != nil {
		return err
	}
	*resp = NewReapResponse(result)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	events, err := s.daemon.History(s.ctx, journal.Query{
		Camera: req.Camera,
		Kind:   journal.Kind(req.Kind),
		Since:  req.Since,
		Limit:  req.Limit,
	})
	if err != nil {
		return err
	}
	resp.Events = events
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if req.Camera != "" {
		path, err := s.daemon.CameraLogPath(req.Camera)
		if err != nil {
			return err
		}
		logPath = path
	}
	resp.Path = logPath
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
