// Package reporter implements C6, the in-process transport that ships
// events from an intercepted process to the collector (C7).
package reporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rizsotto/Bear-sub001/internal/bearerr"
	"github.com/rizsotto/Bear-sub001/internal/event"
)

// errRPCInvalid matches the literal "invalid" error string
// handleResolveProgram sends back for an unknown compiler name, so
// ResolveProgram can translate it to bearerr.ErrInvalidProgram instead of
// a generic RPC failure.
var errRPCInvalid = errors.New("invalid")

// DefaultTimeout bounds every connect/write the client performs, per
// spec.md §5's "bounded by a short per-call timeout (default 200 ms)".
const DefaultTimeout = 200 * time.Millisecond

// Client is C6: a lazily connected, process-lifetime transport to one
// collector endpoint. It is safe for concurrent use by multiple shim
// invocations on different threads.
//
// Note on reentrancy: spec.md §4.6 requires the reporter to resolve and
// invoke the real connect/write/close through C2 so it cannot recurse
// into our own shims. This Go-level Client only ever calls net.Dial /
// net.Conn.Write / net.Conn.Close, none of which are among the libc
// entry points C4 intercepts (exec/spawn/system/popen); the shim layer
// that embeds this client (internal/intercept, exported through the cgo
// entry points in cmd/bear-preload) is the piece
// responsible for the C2 indirection on the functions it *does*
// intercept. Nothing in this package calls an intercepted function.
type Client struct {
	endpoint string

	mu   sync.Mutex
	conn net.Conn
}

// New returns a Client targeting endpoint (a Unix socket path or a
// host:port pair, per spec.md §3's collector_endpoint).
func New(endpoint string) *Client {
	return &Client{endpoint: endpoint}
}

func dial(endpoint string) (net.Conn, error) {
	network := "unix"
	if looksLikeHostPort(endpoint) {
		network = "tcp"
	}
	return net.DialTimeout(network, endpoint, DefaultTimeout)
}

func looksLikeHostPort(endpoint string) bool {
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

// Report sends one event. If the client cannot connect, the event is
// dropped. If a write fails, the client drops the connection and tries
// exactly once to reconnect and resend; a second failure drops the
// event. Report never blocks the caller beyond
// DefaultTimeout per attempt, and never returns an error the caller must
// act on — interception must never stall the build over a collector
// outage, so failures are reported only for logging.
func (c *Client) Report(e event.Event) error {
	payload, err := event.Marshal(e)
	if err != nil {
		return err
	}

	if err := c.send(payload); err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return bearerr.ErrReportDropped
		}
		c.reset()
		if err := c.send(payload); err != nil {
			return bearerr.ErrReportDropped
		}
	}
	return nil
}

func (c *Client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := dial(c.endpoint)
		if err != nil {
			return err
		}
		c.conn = conn
	}

	c.conn.SetWriteDeadline(timeNow().Add(DefaultTimeout))
	if err := event.WriteFrame(c.conn, payload); err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close releases the underlying connection, if any. Ordinarily the
// kernel reclaims it at process exit (spec.md §5: "closed at process
// exit by the kernel"); Close exists so the wrapper-mode shim (C13),
// which is a short-lived ordinary binary rather than a preloaded
// library, can shut down its connection deterministically before exec.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// rpcRequest/rpcResponse mirror the wire shape internal/collector's rpc.go
// decodes on the other end: an event record never carries a "method"
// field, which is how the collector's read loop tells the two apart.
type rpcRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
	ID     interface{} `json:"id,omitempty"`
}

type rpcResponse struct {
	ID     interface{}     `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// call issues one request/response round trip over a fresh connection.
// Wrapper-mode (C13) is the only caller: a short-lived process that makes
// exactly one or two RPCs before exiting, so paying for a dedicated dial
// per call (rather than reusing Client's shared connection and its
// Report-oriented retry policy) keeps this path simple and separate from
// the high-volume event stream.
func (c *Client) call(method string, params, result interface{}) error {
	conn, err := dial(c.endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}

	conn.SetDeadline(timeNow().Add(DefaultTimeout))
	if err := event.WriteFrame(conn, payload); err != nil {
		return err
	}

	raw, err := event.ReadFrame(conn)
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		if resp.Error == "invalid" {
			return fmt.Errorf("reporter: %s: %w", method, errRPCInvalid)
		}
		return fmt.Errorf("reporter: %s: %s", method, resp.Error)
	}
	if result != nil {
		return json.Unmarshal(resp.Result, result)
	}
	return nil
}

// ResolveProgram issues C13's ResolveProgram RPC (spec.md §6): given the
// short name the wrapper binary was invoked as, returns the real compiler
// path the collector was configured with. A name the collector does not
// know surfaces as bearerr.ErrInvalidProgram; the wrapper must then fail
// closed rather than guess at a path.
func (c *Client) ResolveProgram(name string) (string, error) {
	var path string
	if err := c.call("ResolveProgram", map[string]string{"name": name}, &path); err != nil {
		if errors.Is(err, errRPCInvalid) {
			return "", bearerr.ErrInvalidProgram
		}
		return "", err
	}
	return path, nil
}

// UpdateEnvironment issues C7's UpdateEnvironment RPC: hands env to the
// collector and gets back a copy with the three session keys upserted,
// per spec.md §4.7 and SPEC_FULL.md §C's resolution of that Open Question.
func (c *Client) UpdateEnvironment(env map[string]string) (map[string]string, error) {
	var updated map[string]string
	if err := c.call("UpdateEnvironment", map[string]interface{}{"env": env}, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// timeNow is indirected for testability, matching event.Clock's pattern.
var timeNow = time.Now
