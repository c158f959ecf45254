package websocket

import (
	"sync"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // channel -> connectionID -> connection
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn domain.WebSocketConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	channel := conn.Channel()
	if cm.connections[channel] == nil {
		cm.connections[channel] = make(map[string]domain.WebSocketConnection)
	}
	cm.connections[channel][conn.ID()] = conn

	cm.log.Debug("Connection registered", "connection_id", conn.ID(), "channel", channel)
}

func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	channel := conn.Channel()
	if conns, exists := cm.connections[channel]; exists {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(cm.connections, channel)
		}
	}

	cm.log.Debug("Connection unregistered", "connection_id", conn.ID(), "channel", channel)
}

func (cm *ConnectionManager) GetConnectionsForChannel(channel string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	connections := make([]domain.WebSocketConnection, 0, len(cm.connections[channel]))
	for _, conn := range cm.connections[channel] {
		connections = append(connections, conn)
	}
	return connections
}

// Deliver hands payload to every subscriber of channel and returns how many
// accepted it. A subscriber whose buffer is full misses this message only.
func (cm *ConnectionManager) Deliver(channel string, payload []byte) int {
	delivered := 0
	for _, conn := range cm.GetConnectionsForChannel(channel) {
		if conn.Send(payload) {
			delivered++
			continue
		}
		cm.log.Warn("Dropped message for slow subscriber", "connection_id", conn.ID(), "channel", channel)
	}
	return delivered
}

func (cm *ConnectionManager) CloseAll() {
	cm.mutex.Lock()
	all := cm.connections
	cm.connections = make(map[string]map[string]domain.WebSocketConnection)
	cm.mutex.Unlock()

	for channel, conns := range all {
		for id, conn := range conns {
			if err := conn.Close(); err != nil {
				cm.log.Error("Failed to close connection", "connection_id", id, "channel", channel, "error", err)
			}
		}
	}
}

// Count returns the number of live subscribers across all channels.
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	n := 0
	for _, conns := range cm.connections {
		n += len(conns)
	}
	return n
}
