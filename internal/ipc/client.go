package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start asks the daemon to start its cameras.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop stops every camera while leaving the daemon process up.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Shutdown stops the cameras and exits the daemon process.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	return call[ShutdownResponse](c, "Shutdown", ShutdownRequest{})
}

// Restart re-executes the daemon process.
func (c *Client) Restart() (*RestartResponse, error) {
	return call[RestartResponse](c, "Restart", RestartRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// List returns every configured camera.
func (c *Client) List() (*ListResponse, error) {
	return call[ListResponse](c, "List", ListRequest{})
}

// Camera returns the status of one camera.
func (c *Client) Camera(name string) (*CameraResponse, error) {
	return call[CameraResponse](c, "Camera", CameraRequest{Name: name})
}

// RecordStart asks a camera to record.
func (c *Client) RecordStart(name string) (*CameraResponse, error) {
	return call[CameraResponse](c, "RecordStart", CameraRequest{Name: name})
}

// RecordStop asks a camera to stop recording.
func (c *Client) RecordStop(name string) (*CameraResponse, error) {
	return call[CameraResponse](c, "RecordStop", CameraRequest{Name: name})
}

// WatcherStart enables snapshot writing for a camera.
func (c *Client) WatcherStart(name string) (*CameraResponse, error) {
	return call[CameraResponse](c, "WatcherStart", CameraRequest{Name: name})
}

// WatcherStop disables snapshot writing for a camera.
func (c *Client) WatcherStop(name string) (*CameraResponse, error) {
	return call[CameraResponse](c, "WatcherStop", CameraRequest{Name: name})
}

// Reap runs an eviction pass over a camera's storage.
func (c *Client) Reap(name string) (*ReapResponse, error) {
	return call[ReapResponse](c, "Reap", CameraRequest{Name: name})
}

// History lists journal events.
func (c *Client) History(req HistoryRequest) (*HistoryResponse, error) {
	return call[HistoryResponse](c, "History", req)
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
