package server

import (
	"errors"
	"sync"

	"github.com/antibyte/espresso/pkg/configuration"
	"github.com/antibyte/espresso/pkg/logger"
)

// MaxClientsDefault applies when [Server] max_clients is unset.
const MaxClientsDefault = 100

// ErrTooManyClients is returned by AddClient when the server is full.
var ErrTooManyClients = errors.New("too many clients")

// ClientManager tracks open websocket connections by connection ID.
type ClientManager struct {
	clients    map[string]*Client
	maxClients int
	mu         sync.RWMutex
}

// NewClientManager creates a manager limited by [Server] max_clients.
func NewClientManager() *ClientManager {
	limit := configuration.GetInt("Server", "max_clients", MaxClientsDefault)
	if limit <= 0 {
		limit = MaxClientsDefault
	}
	return &ClientManager{
		clients:    make(map[string]*Client),
		maxClients: limit,
	}
}

// AddClient registers client.
func (cm *ClientManager) AddClient(client *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if len(cm.clients) >= cm.maxClients {
		return ErrTooManyClients
	}
	cm.clients[client.id] = client
	logger.WebSocketDebug("client %s added (session %s), %d connected", client.id, client.sessionID, len(cm.clients))
	return nil
}

// RemoveClient forgets the client with connection ID id.
func (cm *ClientManager) RemoveClient(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.clients[id]; exists {
		delete(cm.clients, id)
		logger.WebSocketDebug("client %s removed, %d connected", id, len(cm.clients))
	}
}

// GetClientCount returns the number of connected clients.
func (cm *ClientManager) GetClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// Full reports whether AddClient would refuse another client.
func (cm *ClientManager) Full() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients) >= cm.maxClients
}

// HasClient reports whether connection id is registered.
func (cm *ClientManager) HasClient(id string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, exists := cm.clients[id]
	return exists
}

// CloseAll disconnects every client. Running programs are cancelled.
func (cm *ClientManager) CloseAll() {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		clients = append(clients, c)
	}
	cm.mu.RUnlock()

	// close calls RemoveClient, so it must run without the lock held
	for _, c := range clients {
		c.close()
	}
}
