// Package collector implements C7, the parent-side endpoint that
// accepts concurrent reports from every descendant process and
// serializes them into the event database (C8).
package collector

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rizsotto/Bear-sub001/internal/bearerr"
	"github.com/rizsotto/Bear-sub001/internal/event"
	"github.com/rizsotto/Bear-sub001/internal/eventdb"
	"github.com/rizsotto/Bear-sub001/internal/session"
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight
// connections to finish before force-closing them, per spec.md §4.7's
// "bounded timeout (default 5 seconds)".
const DefaultDrainTimeout = 5 * time.Second

// Config bundles what the collector needs beyond its endpoint: the
// database to append to, the wrapper-mode program table, and the session
// values UpdateEnvironment upserts.
type Config struct {
	Endpoint     string
	DB           *eventdb.DB
	Programs     map[string]string // short name -> resolved compiler path, for ResolveProgram
	Library      string
	Verbose      bool
	DrainTimeout time.Duration
	Logger       zerolog.Logger
}

// Server is C7. Its accept loop runs on one goroutine; each accepted
// connection is served by its own goroutine reading a stream of framed
// records, matching spec.md §5's "parallel threads — one accept loop
// plus one reader per active connection."
type Server struct {
	cfg Config

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// New constructs a Server bound to cfg.Endpoint once Start is called.
func New(cfg Config) *Server {
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	return &Server{
		cfg:   cfg,
		quit:  make(chan struct{}),
		conns: make(map[net.Conn]struct{}),
	}
}

// Endpoint reports the address the server ultimately bound, which for a
// Unix socket is cfg.Endpoint verbatim and for "host:port" reflects any
// OS-assigned ephemeral port once Start has resolved it.
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return s.cfg.Endpoint
	}
	return s.listener.Addr().String()
}

// Start binds the collector's endpoint and begins accepting connections.
// A bind failure here is CollectorFatal: the supervisor must abort before
// forking the root child (spec.md §7).
func (s *Server) Start() error {
	network := "unix"
	if looksLikeHostPort(s.cfg.Endpoint) {
		network = "tcp"
	}

	if network == "unix" {
		_ = os.Remove(s.cfg.Endpoint)
	}

	ln, err := net.Listen(network, s.cfg.Endpoint)
	if err != nil {
		return &fatalError{cause: err}
	}
	if network == "unix" {
		if err := os.Chmod(s.cfg.Endpoint, 0o700); err != nil {
			ln.Close()
			return &fatalError{cause: err}
		}
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func looksLikeHostPort(endpoint string) bool {
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

type fatalError struct{ cause error }

func (e *fatalError) Error() string { return "collector: " + e.cause.Error() }
func (e *fatalError) Unwrap() error { return bearerr.ErrCollectorFatal }

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.cfg.Logger.Warn().Err(err).Msg("collector: accept error")
				continue
			}
		}

		s.trackConn(conn, true)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConnection implements the per-connection state machine of
// spec.md §4.7: Accepted -> Reading -> {Reading, Closed}. Each decoded
// record is either a bare event (appended to the DB) or an auxiliary RPC
// request (ResolveProgram/UpdateEnvironment), distinguished structurally
// by event.IsEventRecord.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.trackConn(conn, false)

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		payload, err := event.ReadFrame(conn)
		if err != nil {
			return // EOF or I/O error -> Closed
		}

		if event.IsEventRecord(payload) {
			s.handleEvent(payload)
			continue
		}
		s.handleRequest(conn, payload)
	}
}

func (s *Server) handleEvent(payload []byte) {
	e, err := event.Unmarshal(payload)
	if err != nil {
		s.cfg.Logger.Debug().Err(err).Msg("collector: dropping malformed event record")
		return
	}
	if err := s.cfg.DB.Insert(e); err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("collector: failed to persist event")
	}
}

func (s *Server) handleRequest(conn net.Conn, payload []byte) {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeError(conn, nil, "parse error")
		return
	}

	switch req.Method {
	case "ResolveProgram":
		s.handleResolveProgram(conn, req)
	case "UpdateEnvironment":
		s.handleUpdateEnvironment(conn, req)
	default:
		s.writeError(conn, req.ID, "unknown method: "+req.Method)
	}
}

func (s *Server) handleResolveProgram(conn net.Conn, req request) {
	var p resolveProgramParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.writeError(conn, req.ID, "invalid params")
		return
	}

	path, ok := s.cfg.Programs[p.Name]
	if !ok {
		s.writeError(conn, req.ID, "invalid")
		return
	}
	s.writeResult(conn, req.ID, path)
}

func (s *Server) handleUpdateEnvironment(conn net.Conn, req request) {
	var p updateEnvironmentParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.writeError(conn, req.ID, "invalid params")
		return
	}

	updated := session.UpsertKeys(p.Env, s.cfg.Library, s.Endpoint(), s.cfg.Verbose)
	s.writeResult(conn, req.ID, updated)
}

func (s *Server) writeResult(conn net.Conn, id interface{}, result interface{}) {
	data, err := json.Marshal(response{ID: id, Result: result})
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("collector: marshaling response")
		return
	}
	if err := event.WriteFrame(conn, data); err != nil {
		s.cfg.Logger.Debug().Err(err).Msg("collector: writing response")
	}
}

func (s *Server) writeError(conn net.Conn, id interface{}, message string) {
	data, err := json.Marshal(response{ID: id, Error: message})
	if err != nil {
		return
	}
	_ = event.WriteFrame(conn, data)
}

// Stop signals the accept loop to stop, closes the listener, and waits
// up to cfg.DrainTimeout for in-flight connections to finish on their
// own. Any connection still open past the deadline is force-closed and
// its partial final record is discarded, per spec.md §4.7.
func (s *Server) Stop() error {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.DrainTimeout):
		s.forceCloseRemaining()
		<-done
		return bearerr.ErrDrainTimeout
	}
}

func (s *Server) forceCloseRemaining() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
