// Package client is the Go client library for the SimpleRemote agent:
// typed wrappers over the JSON-RPC surface plus helpers for the
// asynchronous callback, progress, and transfer channels.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/simpleremote/simpleremote/internal/agent/jsonrpc"
)

const defaultTimeout = 5 * time.Second

// Client issues single-shot RPC calls to one agent
type Client struct {
	addr    string
	timeout time.Duration
}

// Option customizes a Client
type Option func(*Client)

// WithTimeout overrides the per-call network timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client for the agent at addr ("host:port")
func New(addr string, opts ...Option) *Client {
	c := &Client{addr: addr, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs one request/response exchange on a fresh connection and
// decodes the result into out (when out is non-nil).
func (c *Client) Call(method string, out interface{}, params ...interface{}) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to reach agent at %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	p, err := jsonrpc.MarshalParams(params...)
	if err != nil {
		return err
	}
	req := &jsonrpc.Request{Method: method, Params: p, ID: json.RawMessage("1")}
	if err := jsonrpc.WriteRequest(conn, req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	// Block on the reply without the dial deadline: RunWithResult and
	// friends legitimately take as long as the child process does.
	_ = conn.SetDeadline(time.Time{})
	resp, err := jsonrpc.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("unexpected result for %s: %w", method, err)
		}
	}
	return nil
}

// optString maps "" to JSON null for optional trailing parameters
func optString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// StartJob launches a job with buffered output and returns its id
func (c *Client) StartJob(program, args string) (int64, error) {
	var id int64
	err := c.Call("StartJob", &id, program, optString(args))
	return id, err
}

// StartJobWithNotification launches a job whose completion is announced
// to callbackAddr:callbackPort. An empty address tells the agent to use
// this client's own IP.
func (c *Client) StartJobWithNotification(callbackAddr string, callbackPort int, program, args string) (int64, error) {
	var id int64
	err := c.Call("StartJobWithNotification", &id, callbackAddr, callbackPort, program, optString(args))
	return id, err
}

// StartJobWithProgress additionally streams live output to progressPort
func (c *Client) StartJobWithProgress(callbackAddr string, callbackPort, progressPort int, program, args string) (int64, error) {
	var id int64
	err := c.Call("StartJobWithProgress", &id, callbackAddr, callbackPort, progressPort, program, optString(args))
	return id, err
}

// IsJobComplete reports whether the job's child process has exited
func (c *Client) IsJobComplete(id int64) (bool, error) {
	var done bool
	err := c.Call("IsJobComplete", &done, id)
	return done, err
}

// StopJob force-terminates a running job
func (c *Client) StopJob(id int64) error {
	var ok bool
	return c.Call("StopJob", &ok, id)
}

// GetJobResult retrieves the buffered output and releases the job
func (c *Client) GetJobResult(id int64) (string, error) {
	var out string
	err := c.Call("GetJobResult", &out, id)
	return out, err
}

// GetAllJobs returns a snapshot of tracked jobs: id -> isDone
func (c *Client) GetAllJobs() (map[int64]bool, error) {
	var jobs map[int64]bool
	err := c.Call("GetAllJobs", &jobs)
	return jobs, err
}

// Run launches a program fire-and-forget
func (c *Client) Run(program, args string) error {
	var ok bool
	return c.Call("Run", &ok, program, optString(args))
}

// RunWithResult launches a program and blocks for its merged output
func (c *Client) RunWithResult(program, args string) (string, error) {
	var out string
	err := c.Call("RunWithResult", &out, program, optString(args))
	return out, err
}

// KillProcess kills processes on the agent host by image name
func (c *Client) KillProcess(name string) error {
	var ok bool
	return c.Call("KillProcess", &ok, name)
}

// Upload asks the agent to receive an archive into destPath and returns
// the transfer port to connect to. Port 0 lets the agent pick.
func (c *Client) Upload(destPath string, overwrite bool, port int) (int, error) {
	var bound int
	err := c.Call("Upload", &bound, destPath, overwrite, port)
	return bound, err
}

// Download asks the agent to serve an archive of path and returns the
// transfer port plus the pre-computed uncompressed byte total.
func (c *Client) Download(path string, port int) (int, int64, error) {
	var result []int64
	if err := c.Call("Download", &result, path, port); err != nil {
		return 0, 0, err
	}
	if len(result) != 2 {
		return 0, 0, fmt.Errorf("unexpected Download reply shape: %v", result)
	}
	return int(result[0]), result[1], nil
}

// GetVersion returns the agent's version string
func (c *Client) GetVersion() (string, error) {
	var v string
	err := c.Call("GetVersion", &v)
	return v, err
}

// GetHeartbeat checks liveness
func (c *Client) GetHeartbeat() (bool, error) {
	var ok bool
	err := c.Call("GetHeartbeat", &ok)
	return ok, err
}

// GetClientIP returns this client's address as the agent sees it
func (c *Client) GetClientIP() (string, error) {
	var ip string
	err := c.Call("GetClientIP", &ip)
	return ip, err
}
