// Package server implements the connection supervisor: accepting RESP
// connections, running each through the reader/writer goroutine pair,
// and coordinating graceful shutdown. Grounded on the teacher's
// cmd/cc-backend/server.go (serverStart/serverShutdown's
// net.Listen-then-Serve shape and its WaitGroup-plus-signal-channel
// shutdown idiom in main.go), adapted from one shared http.Server to
// one goroutine pair per accepted net.Conn, since RESP is a persistent
// line protocol rather than a request/response one.
package server

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/corekv/corekv/internal/aof"
	"github.com/corekv/corekv/internal/corelog"
	"github.com/corekv/corekv/internal/dispatch"
	"github.com/corekv/corekv/internal/maintenance"
	"github.com/corekv/corekv/internal/observability"
	"github.com/corekv/corekv/internal/resp"
)

// Server owns the listener and the set of live connections, so CLIENT
// LIST/KILL and graceful shutdown can enumerate and act on them.
type Server struct {
	Dispatch *dispatch.Server
	Monitor  *observability.Monitor
	Slowlog  *observability.Slowlog
	// AOF, if non-nil, receives every write command so it can be
	// replayed on the next startup (spec.md §6's command-log mode).
	AOF *aof.Log
	// Maintenance, if non-nil, has its dirty counter advanced by every
	// write command so the save-rule trigger in internal/maintenance
	// can decide when to snapshot.
	Maintenance *maintenance.Manager
	// Metrics, if non-nil, is fed per-command counters for the admin
	// HTTP surface's /metrics route.
	Metrics *observability.Metrics

	addr string
	ln   net.Listener

	mu    sync.Mutex
	conns map[uint64]*connHandle
	wg    sync.WaitGroup

	shuttingDown bool
}

type connHandle struct {
	conn    *dispatch.Conn
	netConn net.Conn
	name    string
	addr    string
}

func New(addr string, dispatchSrv *dispatch.Server, mon *observability.Monitor, slow *observability.Slowlog) *Server {
	return &Server{
		Dispatch: dispatchSrv,
		Monitor:  mon,
		Slowlog:  slow,
		addr:     addr,
		conns:    map[uint64]*connHandle{},
		// AOF, Maintenance, Metrics are left nil; callers that want
		// them set the fields directly after New returns.
	}
}

// ListenAndServe binds the listener and accepts connections until the
// listener is closed by Shutdown, mirroring the teacher's
// "listener first, then serve" ordering so bind errors surface before
// any background state is started.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	corelog.Infof("server: listening on %s", s.addr)

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			down := s.shuttingDown
			s.mu.Unlock()
			if down {
				return nil
			}
			corelog.Errorf("server: accept failed: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.serveConn(nc)
	}
}

// Shutdown stops accepting new connections and waits for every
// in-flight connection's goroutine to finish, the same
// Serve-then-Wait shape the teacher's main.go uses around
// http.Server.Shutdown plus its archiving WaitGroup.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	for _, ch := range s.conns {
		ch.netConn.Close()
	}
	s.mu.Unlock()

	if s.ln != nil {
		s.ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.wg.Done()
	defer nc.Close()

	connID := s.Dispatch.NextConnID()
	conn := s.Dispatch.NewConn(connID)
	handle := &connHandle{conn: conn, netConn: nc, addr: nc.RemoteAddr().String()}

	s.mu.Lock()
	s.conns[connID] = handle
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, connID)
		s.mu.Unlock()
	}()

	corelog.Debugf("server: connection %d opened from %s", connID, handle.addr)
	if s.Metrics != nil {
		s.Metrics.IncConnected()
		defer s.Metrics.DecConnected()
	}

	reader := bufio.NewReader(nc)
	writer := bufio.NewWriter(nc)
	dec := resp.NewDecoder(reader)

	for {
		frame, err := dec.ReadFrame()
		if err != nil {
			corelog.Debugf("server: connection %d closed: %v", connID, err)
			return
		}
		argv, ok := frameToArgv(frame)
		if !ok {
			writer.Write(resp.Encode(nil, resp.Err("ERR Protocol error: expected array of bulk strings")))
			writer.Flush()
			continue
		}
		if len(argv) == 0 {
			continue
		}

		if verbIsMonitor(argv) {
			s.runMonitorMode(connID, nc, writer)
			return
		}
		if reply, ok := s.handleSlowlogCommand(argv); ok {
			writer.Write(resp.Encode(nil, reply))
			if err := writer.Flush(); err != nil {
				return
			}
			continue
		}
		if reply, ok := s.handleClientCommand(connID, handle, argv); ok {
			writer.Write(resp.Encode(nil, reply))
			if err := writer.Flush(); err != nil {
				return
			}
			continue
		}

		start := time.Now()
		reply, mutated := dispatch.Dispatch(s.Dispatch, conn, argv, false)
		elapsed := time.Since(start)
		if s.Metrics != nil {
			s.Metrics.ObserveCommand(asciiLowerVerb(argv[0]), elapsed.Seconds())
			if !mutated {
				if reply.Null {
					s.Metrics.IncKeyspaceMiss()
				} else {
					s.Metrics.IncKeyspaceHit()
				}
			}
		}
		if mutated {
			if s.AOF != nil {
				if err := s.AOF.Append(argv); err != nil {
					corelog.Errorf("server: aof append failed: %v", err)
				}
			}
			if s.Maintenance != nil {
				s.Maintenance.MarkDirty(1)
			}
		}
		if s.Monitor != nil {
			s.Monitor.Mirror(connID, conn.DBIndex, handle.addr, argv)
		}
		if s.Slowlog != nil {
			s.Slowlog.RecordFor(argv, elapsed, handle.addr, handle.name)
		}

		writer.Write(resp.Encode(nil, reply))
		s.drainOutbox(conn, writer)
		if err := writer.Flush(); err != nil {
			return
		}

		if verbIsQuit(argv) {
			return
		}
	}
}

// runMonitorMode switches the connection into a one-way feed of
// mirrored command lines (spec.md §4.16); the connection never reads
// another command after this, matching MONITOR's real-protocol
// behavior of owning the socket until disconnect.
func (s *Server) runMonitorMode(connID uint64, nc net.Conn, writer *bufio.Writer) {
	if s.Monitor == nil {
		writer.Write(resp.Encode(nil, resp.Err("ERR MONITOR is not enabled")))
		writer.Flush()
		return
	}
	ch := s.Monitor.Attach(connID)
	defer s.Monitor.Detach(connID)

	writer.Write(resp.Encode(nil, resp.Simple("OK")))
	if err := writer.Flush(); err != nil {
		return
	}

	// A monitoring client sends no further commands, so the only way to
	// notice it hung up is a blocking read that returns once the peer
	// (or Shutdown, via nc.Close) ends the connection.
	closed := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		nc.Read(buf)
		close(closed)
	}()

	for {
		select {
		case line := <-ch:
			writer.Write(resp.Encode(nil, resp.Simple(line)))
			if err := writer.Flush(); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func verbIsMonitor(argv [][]byte) bool {
	return len(argv) == 1 && asciiEqualFold(string(argv[0]), "monitor")
}

// handleSlowlogCommand answers SLOWLOG LEN/GET/RESET directly against
// the observability.Slowlog, since it is connection-supervisor state
// rather than a keyspace-visible command internal/dispatch owns.
func (s *Server) handleSlowlogCommand(argv [][]byte) (resp.Frame, bool) {
	if len(argv) < 2 || !asciiEqualFold(string(argv[0]), "slowlog") {
		return resp.Frame{}, false
	}
	if s.Slowlog == nil {
		return resp.Err("ERR slowlog is not enabled"), true
	}
	switch {
	case asciiEqualFold(string(argv[1]), "len"):
		return resp.Int(int64(s.Slowlog.Len())), true
	case asciiEqualFold(string(argv[1]), "reset"):
		s.Slowlog.Reset()
		return resp.Simple("OK"), true
	case asciiEqualFold(string(argv[1]), "get"):
		n := -1
		if len(argv) >= 3 {
			if v, ok := parseCount(argv[2]); ok {
				n = v
			}
		}
		entries := s.Slowlog.Get(n)
		items := make([]resp.Frame, len(entries))
		for i, e := range entries {
			argvFrames := make([]resp.Frame, len(e.Argv))
			for j, a := range e.Argv {
				argvFrames[j] = resp.Bulk(a)
			}
			items[i] = resp.Arr(
				resp.Int(e.ID),
				resp.Int(e.TimestampS),
				resp.Int(e.ElapsedUs),
				resp.ArrSlice(argvFrames),
				resp.BulkStr(e.ClientAddr),
				resp.BulkStr(e.ClientName),
			)
		}
		return resp.ArrSlice(items), true
	default:
		return resp.Err("ERR unknown SLOWLOG subcommand"), true
	}
}

// handleClientCommand answers CLIENT LIST/KILL/SETNAME/GETNAME/ID
// directly against the connection registry (spec.md §4.15's
// process-wide client registry), since internal/dispatch has no
// visibility into net.Conn-level state.
func (s *Server) handleClientCommand(connID uint64, handle *connHandle, argv [][]byte) (resp.Frame, bool) {
	if len(argv) < 2 || !asciiEqualFold(string(argv[0]), "client") {
		return resp.Frame{}, false
	}
	switch {
	case asciiEqualFold(string(argv[1]), "list"):
		clients := s.Clients()
		var b []byte
		for _, c := range clients {
			b = append(b, []byte(clientInfoLine(c))...)
			b = append(b, '\n')
		}
		return resp.Bulk(b), true
	case asciiEqualFold(string(argv[1]), "id"):
		return resp.Int(int64(connID)), true
	case asciiEqualFold(string(argv[1]), "getname"):
		return resp.BulkStr(handle.name), true
	case asciiEqualFold(string(argv[1]), "setname"):
		if len(argv) != 3 {
			return resp.Err("ERR wrong number of arguments for 'client|setname' command"), true
		}
		s.SetClientName(connID, string(argv[2]))
		return resp.Simple("OK"), true
	case asciiEqualFold(string(argv[1]), "kill"):
		if len(argv) != 3 {
			return resp.Err("ERR wrong number of arguments for 'client|kill' command"), true
		}
		n, ok := parseCount(argv[2])
		if !ok {
			return resp.Err("ERR invalid client id"), true
		}
		if s.KillClient(uint64(n)) {
			return resp.Simple("OK"), true
		}
		return resp.Err("ERR No such client"), true
	default:
		return resp.Err("ERR unknown CLIENT subcommand"), true
	}
}

func clientInfoLine(c ClientInfo) string {
	return "id=" + itoa(c.ID) + " addr=" + c.Addr + " name=" + c.Name + " db=" + itoa(uint64(c.DB))
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func parseCount(b []byte) (int, bool) {
	n := 0
	if len(b) == 0 {
		return 0, false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// drainOutbox flushes any pub/sub push messages queued for conn since
// the previous write, so a subscribed connection's replies interleave
// with asynchronously delivered messages on the same writer.
func (s *Server) drainOutbox(conn *dispatch.Conn, writer *bufio.Writer) {
	for {
		select {
		case msg := <-conn.Outbox():
			writer.Write(resp.Encode(nil, msg))
		default:
			return
		}
	}
}

func verbIsQuit(argv [][]byte) bool {
	return len(argv) == 1 && asciiEqualFold(string(argv[0]), "quit")
}

func asciiLowerVerb(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func asciiEqualFold(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		a, b := s[i], t[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// frameToArgv converts a decoded command frame into argv. RESP clients
// send commands as arrays of bulk strings; an inline simple-string is
// also accepted for manual/telnet-style testing (spec.md §4.1).
func frameToArgv(f resp.Frame) ([][]byte, bool) {
	switch f.Kind {
	case resp.Array:
		if f.Null {
			return nil, true
		}
		argv := make([][]byte, len(f.Items))
		for i, it := range f.Items {
			b, ok := resp.AsBytes(it)
			if !ok {
				return nil, false
			}
			argv[i] = b
		}
		return argv, true
	default:
		return nil, false
	}
}

// ClientInfo is one CLIENT LIST row (spec.md §4.17).
type ClientInfo struct {
	ID   uint64
	Addr string
	Name string
	DB   int
}

func (s *Server) Clients() []ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClientInfo, 0, len(s.conns))
	for id, ch := range s.conns {
		out = append(out, ClientInfo{ID: id, Addr: ch.addr, Name: ch.name, DB: ch.conn.DBIndex})
	}
	return out
}

// KillClient closes the named connection's socket, unblocking its
// reader goroutine (spec.md's CLIENT KILL).
func (s *Server) KillClient(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.conns[id]
	if !ok {
		return false
	}
	ch.netConn.Close()
	return true
}

// SetClientName records the CLIENT SETNAME value shown by CLIENT LIST.
func (s *Server) SetClientName(id uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.conns[id]; ok {
		ch.name = name
	}
}
