package speedd

import (
	"log/slog"
	"sync"
)

// ConnectionManager tracks live connections and pushes queued tickets to
// whichever dispatchers can take them.
type ConnectionManager struct {
	clients map[string]*ClientConnection
	mu      sync.RWMutex
	logger  *slog.Logger
	db      *Database
}

// constructor for ConnectionManager
func NewConnectionManager(db *Database) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*ClientConnection),
		logger:  slog.Default(),
		db:      db,
	}
}

// AddConnection registers a new client connection.
func (m *ConnectionManager) AddConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = client
	m.logger.Info("client_added",
		"client_id", client.ID,
	)
}

// RemoveConnection unregisters a client connection.
func (m *ConnectionManager) RemoveConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, client.ID)
	m.logger.Info("client_removed",
		"client_id", client.ID,
	)
}

// DispatchPending delivers queued tickets to connected dispatchers. A
// failed delivery requeues the ticket for the next dispatcher.
func (m *ConnectionManager) DispatchPending() {
	m.mu.RLock()
	dispatchers := make([]*ClientConnection, 0, len(m.clients))
	for _, c := range m.clients {
		if c.Roads() != nil {
			dispatchers = append(dispatchers, c)
		}
	}
	m.mu.RUnlock()

	for _, d := range dispatchers {
		roads := d.Roads()
		for {
			ticket, ok := m.db.TakeTicket(roads)
			if !ok {
				break
			}
			if err := d.SendMessage(ticket); err != nil {
				m.logger.Warn("ticket_delivery_failed",
					"client_id", d.ID,
					"plate", ticket.Plate,
					"error", err.Error(),
				)
				m.db.Requeue(ticket)
				break
			}
			m.logger.Info("ticket_dispatched",
				"client_id", d.ID,
				"plate", ticket.Plate,
				"road", ticket.Road,
			)
		}
	}
}

// CloseAllConnections closes every active connection.
func (m *ConnectionManager) CloseAllConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		client.Close()
		delete(m.clients, id)
	}
	m.logger.Info("all_connections_closed")
}

// ClientCount returns the number of active connections.
func (m *ConnectionManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
