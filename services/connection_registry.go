// services/connection_registry.go - Live connection lookup table
package services

import (
	"strings"
	"sync"
)

// ConnectionInfo maps a live connection to its room and identity. It is
// a derived index only; score and progress live on the session.
type ConnectionInfo struct {
	ConnectionID string
	RoomCode     string
	UserID       string
	DisplayName  string
	IsHost       bool
}

type nameReservation struct {
	UserID   string
	RoomCode string
}

// ConnectionRegistry tracks live connections, the set of connections per
// room, and a display-name reservation index used for by-name
// reconnection lookup without scanning all connections.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*ConnectionInfo
	rooms map[string]map[string]struct{}
	names map[string]nameReservation
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*ConnectionInfo),
		rooms: make(map[string]map[string]struct{}),
		names: make(map[string]nameReservation),
	}
}

func nameKey(roomCode, displayName string) string {
	return roomCode + "|" + strings.ToLower(displayName)
}

// Bind associates a connection with a room and identity, reserving the
// display name for later by-name lookup.
func (r *ConnectionRegistry) Bind(connectionID, roomCode, userID string, isHost bool, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A rebind into a different room drops the stale room membership.
	if existing := r.conns[connectionID]; existing != nil && existing.RoomCode != roomCode {
		if members, ok := r.rooms[existing.RoomCode]; ok {
			delete(members, connectionID)
			if len(members) == 0 {
				delete(r.rooms, existing.RoomCode)
			}
		}
	}

	r.conns[connectionID] = &ConnectionInfo{
		ConnectionID: connectionID,
		RoomCode:     roomCode,
		UserID:       userID,
		DisplayName:  displayName,
		IsHost:       isHost,
	}

	members, ok := r.rooms[roomCode]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomCode] = members
	}
	members[connectionID] = struct{}{}

	if displayName != "" {
		r.names[nameKey(roomCode, displayName)] = nameReservation{UserID: userID, RoomCode: roomCode}
	}
}

func (r *ConnectionRegistry) Lookup(connectionID string) *ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connectionID]
}

func (r *ConnectionRegistry) IsHost(connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := r.conns[connectionID]
	return info != nil && info.IsHost
}

// LookupName resolves a reserved display name within a room to the
// stable player identity it belongs to.
func (r *ConnectionRegistry) LookupName(roomCode, displayName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.names[nameKey(roomCode, displayName)]
	if !ok {
		return "", false
	}
	return res.UserID, true
}

// Unbind removes the connection but keeps the display-name reservation,
// so a mid-game disconnect can still be matched on rejoin.
func (r *ConnectionRegistry) Unbind(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(connectionID)
}

// UnbindPlayer removes the connection and releases the name reservation;
// used when a player leaves for good (lobby leave, kick, game end).
func (r *ConnectionRegistry) UnbindPlayer(connectionID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info := r.conns[connectionID]; info != nil {
		delete(r.names, nameKey(info.RoomCode, displayName))
	}
	r.unbindLocked(connectionID)
}

func (r *ConnectionRegistry) unbindLocked(connectionID string) {
	info := r.conns[connectionID]
	if info == nil {
		return
	}
	delete(r.conns, connectionID)
	if members, ok := r.rooms[info.RoomCode]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.rooms, info.RoomCode)
		}
	}
}

// ReleaseRoom drops every connection and name reservation bound to a
// room, including reservations of players with no live connection.
// Called when the room is torn down.
func (r *ConnectionRegistry) ReleaseRoom(roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID := range r.rooms[roomCode] {
		delete(r.conns, connID)
	}
	delete(r.rooms, roomCode)

	prefix := roomCode + "|"
	for key := range r.names {
		if strings.HasPrefix(key, prefix) {
			delete(r.names, key)
		}
	}
}

// ConnectionsInRoom returns the connection ids currently bound to a room.
func (r *ConnectionRegistry) ConnectionsInRoom(roomCode string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomCode]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
