// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ddebettencourt/kwizniac-infinite/internal/middleware"
	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
)

// clientMessage is the single envelope for everything a client sends. Fields
// beyond Type are populated per action.
type clientMessage struct {
	Type     string                `json:"type"`
	RoomID   string                `json:"roomId,omitempty"`
	RoomName string                `json:"roomName,omitempty"`
	Nickname string                `json:"nickname,omitempty"`
	Answer   string                `json:"answer,omitempty"`
	PlayerID string                `json:"playerId,omitempty"`
	Settings *models.SettingsPatch `json:"settings,omitempty"`
}

// WSHandler runs the whole client lifecycle over a single websocket: room
// browsing, membership, and in-game actions. Each connection gets a fresh
// player identity; there are no accounts.
func WSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"trivia"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "trivia" {
			c.Close(BadSubprotocolError, "client must speak the trivia subprotocol")
			return
		}

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := &PlayerConn{
			PlayerID: uuid.New(),
			OutChan:  make(chan map[string]interface{}, 32),
			Cancel:   cancel,
			Kick: func() {
				c.Close(KickedByHostError, "removed from the room by the host")
			},
		}
		s.addConn(conn)

		s.send(conn, map[string]interface{}{
			"type":     "welcome",
			"playerId": conn.PlayerID,
			"rooms":    s.Registry.PublicRooms(),
		})

		go writePump(ctx, c, conn, logger)
		readErr := readPump(ctx, c, s, conn, logger)

		// Cleanup: drop the player from their room and the connection table.
		s.departRoom(conn)
		s.removeConn(conn.PlayerID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readPump processes incoming messages until the connection closes.
func readPump(ctx context.Context, c *websocket.Conn, s *Server, conn *PlayerConn, logger *logrus.Logger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid json from player %v: %v", conn.PlayerID, err)
			s.sendError(conn, "Invalid JSON format")
			continue
		}
		s.handleClientMessage(conn, msg)
	}
}

// writePump owns all socket writes: queued messages plus periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *PlayerConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("Failed to marshal outgoing msg for player %v: %v", conn.PlayerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write to websocket for player %v: %v", conn.PlayerID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Ping failed for player %v, assuming disconnect: %v", conn.PlayerID, err)
				return
			}
		}
	}
}

func (s *Server) sendError(conn *PlayerConn, message string) {
	s.send(conn, map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

// isHost reports whether the player currently holds the host role in the room.
func (s *Server) isHost(roomID string, playerID uuid.UUID) bool {
	if roomID == "" {
		return false
	}
	rm, ok := s.Registry.Snapshot(roomID)
	return ok && rm.HostID == playerID
}

// handleClientMessage routes one decoded client action. The connection's room
// membership is read once under the server mutex, since a concurrent kick can
// change it out from under this goroutine. Membership actions run
// synchronously; answer grading is the one action dispatched to a goroutine
// because it blocks on the grading oracle.
func (s *Server) handleClientMessage(conn *PlayerConn, msg clientMessage) {
	roomID, nickname := s.connState(conn)

	switch msg.Type {
	case "list_rooms":
		s.send(conn, map[string]interface{}{
			"type":  "rooms_updated",
			"rooms": s.Registry.PublicRooms(),
		})

	case "create_room":
		s.handleCreateRoom(conn, msg, roomID)

	case "join_room":
		s.handleJoinRoom(conn, msg, roomID)

	case "leave_room":
		s.departRoom(conn)

	case "update_settings":
		s.handleUpdateSettings(conn, msg, roomID)

	case "start_game":
		s.handleStartGame(conn, roomID)

	case "reveal_clue":
		if !s.isHost(roomID, conn.PlayerID) {
			s.sendError(conn, "Only the host can reveal clues")
			return
		}
		if g, ok := s.Games.Get(roomID); ok {
			g.RevealNextClue()
		}

	case "next_question":
		if !s.isHost(roomID, conn.PlayerID) {
			s.sendError(conn, "Only the host can advance the game")
			return
		}
		if g, ok := s.Games.Get(roomID); ok {
			g.NextQuestion()
		}

	case "end_game":
		if !s.isHost(roomID, conn.PlayerID) {
			s.sendError(conn, "Only the host can end the game")
			return
		}
		if g, ok := s.Games.Get(roomID); ok {
			g.EndGame()
		}

	case "buzz":
		if g, ok := s.Games.Get(roomID); ok {
			g.HandleBuzz(conn.PlayerID, nickname)
		}

	case "submit_answer":
		if g, ok := s.Games.Get(roomID); ok {
			go g.HandleAnswer(conn.PlayerID, msg.Answer)
		}

	case "submit_picker_answer":
		if g, ok := s.Games.Get(roomID); ok {
			g.HandlePickerSubmit(conn.PlayerID, msg.Answer)
		}

	case "kick_player":
		s.handleKickPlayer(conn, msg, roomID)

	case "sync_request":
		s.handleSyncRequest(conn, roomID)

	default:
		s.sendError(conn, "Unknown action type: "+msg.Type)
	}
}

func (s *Server) handleCreateRoom(conn *PlayerConn, msg clientMessage, currentRoom string) {
	if currentRoom != "" {
		s.sendError(conn, "Already in a room")
		return
	}
	nickname := strings.TrimSpace(msg.Nickname)
	if nickname == "" {
		s.sendError(conn, "Nickname is required")
		return
	}

	rm := s.Registry.CreateRoom(strings.TrimSpace(msg.RoomName), conn.PlayerID, nickname, msg.Settings)
	s.setConnRoom(conn, rm.ID, nickname)

	s.Logger.Infof("Player %s created room %s", nickname, rm.ID)
	s.send(conn, map[string]interface{}{
		"type": "room_joined",
		"room": rm,
	})
	s.broadcastRoomsUpdate()
}

func (s *Server) handleJoinRoom(conn *PlayerConn, msg clientMessage, currentRoom string) {
	if currentRoom != "" {
		s.sendError(conn, "Already in a room")
		return
	}
	nickname := strings.TrimSpace(msg.Nickname)
	if nickname == "" {
		s.sendError(conn, "Nickname is required")
		return
	}
	roomID := strings.ToUpper(strings.TrimSpace(msg.RoomID))

	joinedMidGame, err := s.Registry.JoinRoom(roomID, conn.PlayerID, nickname)
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}
	s.setConnRoom(conn, roomID, nickname)

	rm, _ := s.Registry.Snapshot(roomID)
	s.Logger.Infof("Player %s joined room %s", nickname, roomID)

	s.send(conn, map[string]interface{}{
		"type": "room_joined",
		"room": rm,
	})
	s.broadcastToRoom(roomID, map[string]interface{}{
		"type": "room_update",
		"room": rm,
	})

	// Late joiners get the live round state so they can render immediately.
	if joinedMidGame {
		if g, ok := s.Games.Get(roomID); ok {
			s.send(conn, map[string]interface{}{
				"type":  "game_sync",
				"state": g.CurrentSnapshot(),
			})
		}
	}
	s.broadcastRoomsUpdate()
}

func (s *Server) handleUpdateSettings(conn *PlayerConn, msg clientMessage, roomID string) {
	if !s.isHost(roomID, conn.PlayerID) {
		s.sendError(conn, "Only the host can change settings")
		return
	}
	rm, ok := s.Registry.Snapshot(roomID)
	if !ok || rm.State != models.RoomStateLobby {
		s.sendError(conn, "Settings can only be changed in the lobby")
		return
	}

	s.Registry.UpdateSettings(roomID, msg.Settings)
	if updated, ok := s.Registry.Snapshot(roomID); ok {
		s.broadcastToRoom(roomID, map[string]interface{}{
			"type": "room_update",
			"room": updated,
		})
	}
	// Visibility may have flipped, so the public listing needs a refresh.
	s.broadcastRoomsUpdate()
}

func (s *Server) handleStartGame(conn *PlayerConn, roomID string) {
	if !s.isHost(roomID, conn.PlayerID) {
		s.sendError(conn, "Only the host can start the game")
		return
	}
	rm, ok := s.Registry.Snapshot(roomID)
	if !ok {
		s.sendError(conn, "Room not found")
		return
	}
	if rm.State != models.RoomStateLobby {
		s.sendError(conn, "Game already started")
		return
	}

	if err := s.startGame(rm); err != nil {
		s.sendError(conn, err.Error())
		return
	}
	s.broadcastRoomsUpdate()
}

func (s *Server) handleKickPlayer(conn *PlayerConn, msg clientMessage, roomID string) {
	if !s.isHost(roomID, conn.PlayerID) {
		s.sendError(conn, "Only the host can kick players")
		return
	}
	targetID, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		s.sendError(conn, "Invalid player ID")
		return
	}
	if targetID == conn.PlayerID {
		s.sendError(conn, "Cannot kick yourself")
		return
	}

	target, online := s.conn(targetID)
	if !online {
		s.sendError(conn, "Player is not in this room")
		return
	}
	targetRoom, targetNickname := s.connState(target)
	if targetRoom != roomID {
		s.sendError(conn, "Player is not in this room")
		return
	}

	s.Logger.Infof("Room %s: host kicked player %s", roomID, targetNickname)
	s.send(target, map[string]interface{}{
		"type":    "kicked",
		"message": "You were removed from the room by the host",
	})
	s.departRoom(target)
	if target.Kick != nil {
		target.Kick()
	}
}

func (s *Server) handleSyncRequest(conn *PlayerConn, roomID string) {
	if roomID == "" {
		s.sendError(conn, "Not in a room")
		return
	}
	rm, ok := s.Registry.Snapshot(roomID)
	if !ok {
		s.sendError(conn, "Room not found")
		return
	}

	s.send(conn, map[string]interface{}{
		"type": "room_update",
		"room": rm,
	})
	if g, exists := s.Games.Get(roomID); exists {
		s.send(conn, map[string]interface{}{
			"type":  "game_sync",
			"state": g.CurrentSnapshot(),
		})
	}
}
