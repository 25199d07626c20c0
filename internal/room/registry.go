// internal/room/registry.go
package room

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFinished  = errors.New("game has already ended")
	ErrNicknameTaken = errors.New("nickname already taken in this room")
)

// Registry owns every room record in memory. All operations are synchronous
// and atomic with respect to the registry mutex; nothing here ever blocks on
// I/O or timers. Rooms live until their last player departs.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*models.Room),
	}
}

// newRoomCode derives a short uppercase join code from a fresh uuid.
func newRoomCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// CreateRoom creates a room with the host as its first player and returns a
// snapshot of it. A nil patch leaves the default settings in place.
func (r *Registry) CreateRoom(name string, hostID uuid.UUID, hostNickname string, patch *models.SettingsPatch) models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := newRoomCode()
	for _, taken := r.rooms[code]; taken; _, taken = r.rooms[code] {
		code = newRoomCode()
	}
	if name == "" {
		name = "Room " + code
	}

	rm := &models.Room{
		ID:     code,
		Name:   name,
		HostID: hostID,
		Players: []models.Player{{
			ID:       hostID,
			Nickname: hostNickname,
			IsHost:   true,
		}},
		Settings: models.RoomSettings{
			WrongAnswerPenalty: -3,
			IsPublic:           true,
			GameMode:           models.GameModeStandard,
		},
		State:     models.RoomStateLobby,
		CreatedAt: time.Now(),
	}
	applyPatch(&rm.Settings, patch)

	r.rooms[code] = rm
	return snapshotRoom(rm)
}

// Snapshot returns a deep copy of the room so callers can read membership and
// settings without holding the registry lock.
func (r *Registry) Snapshot(roomID string) (models.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return snapshotRoom(rm), true
}

// JoinRoom adds a player to a room. It reports whether the join happened
// mid-game so the caller can follow up with a session snapshot.
func (r *Registry) JoinRoom(roomID string, playerID uuid.UUID, nickname string) (joinedMidGame bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if rm.State == models.RoomStateFinished {
		return false, ErrRoomFinished
	}
	for _, p := range rm.Players {
		if strings.EqualFold(p.Nickname, nickname) {
			return false, ErrNicknameTaken
		}
	}

	rm.Players = append(rm.Players, models.Player{
		ID:       playerID,
		Nickname: nickname,
	})
	return rm.State == models.RoomStatePlaying, nil
}

// RemoveResult describes the outcome of a RemovePlayer call.
type RemoveResult struct {
	WasHost     bool
	RoomDeleted bool
	NewHostID   uuid.UUID // set when the host role moved to another player
}

// RemovePlayer drops a player from the room. The next remaining player by
// list order inherits the host role; an emptied room is deleted outright.
func (r *Registry) RemovePlayer(roomID string, playerID uuid.UUID) (RemoveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return RemoveResult{}, false
	}

	res := RemoveResult{WasHost: rm.HostID == playerID}
	kept := rm.Players[:0]
	for _, p := range rm.Players {
		if p.ID != playerID {
			kept = append(kept, p)
		}
	}
	rm.Players = kept

	if len(rm.Players) == 0 {
		delete(r.rooms, roomID)
		res.RoomDeleted = true
		return res, true
	}

	if res.WasHost {
		rm.Players[0].IsHost = true
		rm.HostID = rm.Players[0].ID
		res.NewHostID = rm.HostID
	}
	return res, true
}

// UpdateSettings shallow-merges the patch into the room's settings.
func (r *Registry) UpdateSettings(roomID string, patch *models.SettingsPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		applyPatch(&rm.Settings, patch)
	}
}

// SetState updates the room's lifecycle state.
func (r *Registry) SetState(roomID string, state models.RoomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		rm.State = state
	}
}

// AdjustScore applies a signed delta to one player's score. Scores have no
// floor; penalties may drive them negative.
func (r *Registry) AdjustScore(roomID string, playerID uuid.UUID, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for i := range rm.Players {
		if rm.Players[i].ID == playerID {
			rm.Players[i].Score += delta
			return
		}
	}
}

// Player returns a copy of one room member.
func (r *Registry) Player(roomID string, playerID uuid.UUID) (models.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return models.Player{}, false
	}
	for _, p := range rm.Players {
		if p.ID == playerID {
			return p, true
		}
	}
	return models.Player{}, false
}

// Standings returns the room's players sorted by descending score.
func (r *Registry) Standings(roomID string) []models.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	standings := make([]models.Player, len(rm.Players))
	copy(standings, rm.Players)
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Score > standings[j].Score
	})
	return standings
}

// PublicRooms lists every public room still in the lobby state.
func (r *Registry) PublicRooms() []models.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summaries := []models.RoomSummary{}
	for _, rm := range r.rooms {
		if !rm.Settings.IsPublic || rm.State != models.RoomStateLobby {
			continue
		}
		host := ""
		for _, p := range rm.Players {
			if p.IsHost {
				host = p.Nickname
				break
			}
		}
		summaries = append(summaries, models.RoomSummary{
			ID:           rm.ID,
			Name:         rm.Name,
			PlayerCount:  len(rm.Players),
			HostNickname: host,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

func applyPatch(s *models.RoomSettings, patch *models.SettingsPatch) {
	if patch == nil {
		return
	}
	if patch.WrongAnswerPenalty != nil {
		s.WrongAnswerPenalty = *patch.WrongAnswerPenalty
		if s.WrongAnswerPenalty > 0 {
			s.WrongAnswerPenalty = 0
		}
	}
	if patch.IsPublic != nil {
		s.IsPublic = *patch.IsPublic
	}
	if patch.GameMode != nil {
		s.GameMode = *patch.GameMode
	}
}

func snapshotRoom(rm *models.Room) models.Room {
	cp := *rm
	cp.Players = make([]models.Player, len(rm.Players))
	copy(cp.Players, rm.Players)
	return cp
}
