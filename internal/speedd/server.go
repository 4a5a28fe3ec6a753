package speedd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Server accepts speed daemon clients and hands each connection to its own
// goroutine.
type Server struct {
	Addr    string
	Manager *ConnectionManager
	DB      *Database

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewServer builds a server listening on addr. archive may be nil to run
// without ticket persistence.
func NewServer(addr string, archive TicketArchive) *Server {
	db := NewDatabase(archive)
	return &Server{
		Addr:    addr,
		Manager: NewConnectionManager(db),
		DB:      db,
		logger:  slog.Default(),
	}
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("server_started", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept_failed", "error", err.Error())
			continue
		}
		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			s.handleConnection(conn)
		}(conn)
	}
}

// handleConnection owns the lifecycle of a single client connection.
func (s *Server) handleConnection(conn net.Conn) {
	client := NewClientConnection(conn, s.Manager)
	s.Manager.AddConnection(client)
	client.Listen()
	s.Manager.RemoveConnection(client)
}

// ListenerAddr returns the bound address, or nil before Start.
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all connections, then waits for the
// connection goroutines to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.Manager.CloseAllConnections()
	s.wg.Wait()
	s.logger.Info("server_stopped")
}
