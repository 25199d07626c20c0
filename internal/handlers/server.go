// internal/handlers/server.go
package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ddebettencourt/kwizniac-infinite/internal/database"
	"github.com/ddebettencourt/kwizniac-infinite/internal/game"
	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
	"github.com/ddebettencourt/kwizniac-infinite/internal/room"
)

// PlayerConn is the server-side record for one websocket client. RoomID is
// empty while the player is browsing the room list. RoomID and Nickname are
// guarded by the server mutex: the host's goroutine mutates them on a kick,
// so the owning read pump must not touch them bare. Writes go through OutChan
// so the write pump owns the socket.
type PlayerConn struct {
	PlayerID uuid.UUID
	Nickname string
	RoomID   string
	OutChan  chan map[string]interface{}
	Cancel   context.CancelFunc

	// Kick closes the underlying socket with the kicked close code. Set by
	// the websocket handler; nil for connections without a live socket.
	Kick func()
}

// Server owns the connection table and wires the room registry, session store
// and oracles together. The registry and game store do their own locking; the
// server mutex only guards the conns map and the per-conn RoomID/Nickname
// fields, and never acquires a game lock while held.
type Server struct {
	Registry *room.Registry
	Games    *game.Store
	Topics   game.TopicSource
	Clues    game.ClueSource
	Grader   game.Grader
	Archive  *database.Archive
	Logger   *logrus.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*PlayerConn
}

func NewServer(logger *logrus.Logger, registry *room.Registry, games *game.Store, topics game.TopicSource, clues game.ClueSource, grader game.Grader, archive *database.Archive) *Server {
	return &Server{
		Registry: registry,
		Games:    games,
		Topics:   topics,
		Clues:    clues,
		Grader:   grader,
		Archive:  archive,
		Logger:   logger,
		conns:    make(map[uuid.UUID]*PlayerConn),
	}
}

func (s *Server) addConn(conn *PlayerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.PlayerID] = conn
}

func (s *Server) removeConn(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, playerID)
}

func (s *Server) conn(playerID uuid.UUID) (*PlayerConn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[playerID]
	return c, ok
}

// connState reads a connection's room membership under the server mutex.
func (s *Server) connState(conn *PlayerConn) (roomID, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn.RoomID, conn.Nickname
}

func (s *Server) setConnRoom(conn *PlayerConn, roomID, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.RoomID = roomID
	conn.Nickname = nickname
}

// send queues a message for the write pump, dropping it if the client's
// buffer is full rather than blocking the caller.
func (s *Server) send(conn *PlayerConn, msg map[string]interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		s.Logger.Warnf("Dropping message to slow client %v", conn.PlayerID)
	}
}

// broadcastToRoom delivers a message to every connection currently in a room.
func (s *Server) broadcastToRoom(roomID string, msg map[string]interface{}) {
	s.mu.Lock()
	targets := make([]*PlayerConn, 0, len(s.conns))
	for _, c := range s.conns {
		if c.RoomID == roomID {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.send(c, msg)
	}
}

// sendToPlayer delivers a message to one connection, wherever it is.
func (s *Server) sendToPlayer(playerID uuid.UUID, msg map[string]interface{}) {
	if c, ok := s.conn(playerID); ok {
		s.send(c, msg)
	}
}

// broadcastRoomsUpdate pushes the public room list to clients browsing it,
// i.e. every connection not currently inside a room.
func (s *Server) broadcastRoomsUpdate() {
	rooms := s.Registry.PublicRooms()
	msg := map[string]interface{}{
		"type":  "rooms_updated",
		"rooms": rooms,
	}

	s.mu.Lock()
	targets := make([]*PlayerConn, 0, len(s.conns))
	for _, c := range s.conns {
		if c.RoomID == "" {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.send(c, msg)
	}
}

// gameEventMessage flattens an engine event into the wire envelope: the
// event type plus its payload fields at the top level.
func gameEventMessage(ev game.GameEvent) map[string]interface{} {
	msg := make(map[string]interface{}, len(ev.Payload)+1)
	msg["type"] = string(ev.Type)
	for k, v := range ev.Payload {
		msg[k] = v
	}
	return msg
}

// startGame builds a session for the room, wires broadcasts and the archive
// hook, and starts the first round. Fails if the room already has a session.
func (s *Server) startGame(rm models.Room) error {
	g := game.NewTriviaGame(rm.ID, rm.Settings.GameMode, s.Registry)
	g.Topics = s.Topics
	g.Clues = s.Clues
	g.Grader = s.Grader
	g.BroadcastFn = func(ev game.GameEvent) {
		s.broadcastToRoom(rm.ID, gameEventMessage(ev))
	}
	g.BroadcastToPlayerFn = func(playerID uuid.UUID, ev game.GameEvent) {
		s.sendToPlayer(playerID, gameEventMessage(ev))
	}
	g.OnGameEnd = func(roomID string, roundsPlayed int, standings []models.Player) {
		s.Games.Delete(roomID)
		s.broadcastRoomsUpdate()
		go func() {
			if err := s.Archive.RecordMatch(context.Background(), roomID, roundsPlayed, standings); err != nil {
				s.Logger.Warnf("Failed to archive match for room %s: %v", roomID, err)
			}
		}()
	}

	if !s.Games.Add(g) {
		return fmt.Errorf("room %s already has a game in progress", rm.ID)
	}
	g.Start()
	return nil
}

// departRoom removes a player from their room on leave, kick or disconnect,
// reassigning the host role and tearing down the session when the room empties.
func (s *Server) departRoom(conn *PlayerConn) {
	s.mu.Lock()
	roomID := conn.RoomID
	conn.RoomID = ""
	s.mu.Unlock()
	if roomID == "" {
		return
	}

	res, ok := s.Registry.RemovePlayer(roomID, conn.PlayerID)
	if !ok {
		return
	}

	if res.RoomDeleted {
		if g, exists := s.Games.Get(roomID); exists {
			g.Teardown()
			s.Games.Delete(roomID)
		}
		s.Logger.Infof("Room %s emptied and deleted", roomID)
		s.broadcastRoomsUpdate()
		return
	}

	if rm, exists := s.Registry.Snapshot(roomID); exists {
		s.broadcastToRoom(roomID, map[string]interface{}{
			"type": "room_update",
			"room": rm,
		})
	}
	if res.WasHost {
		s.broadcastToRoom(roomID, map[string]interface{}{
			"type":      "host_changed",
			"newHostId": res.NewHostID,
		})
		s.Logger.Infof("Room %s: host left, role moved to %v", roomID, res.NewHostID)
	}
	s.broadcastRoomsUpdate()
}
