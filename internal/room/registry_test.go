// internal/room/registry_test.go
package room

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
)

func TestCreateRoomDefaults(t *testing.T) {
	reg := NewRegistry()
	hostID := uuid.New()
	rm := reg.CreateRoom("", hostID, "alice", nil)

	assert.Len(t, rm.ID, 8)
	assert.Equal(t, "Room "+rm.ID, rm.Name, "empty name falls back to the join code")
	assert.Equal(t, hostID, rm.HostID)
	assert.Equal(t, models.RoomStateLobby, rm.State)
	assert.Equal(t, -3, rm.Settings.WrongAnswerPenalty)
	assert.True(t, rm.Settings.IsPublic)
	assert.Equal(t, models.GameModeStandard, rm.Settings.GameMode)

	require.Len(t, rm.Players, 1)
	assert.True(t, rm.Players[0].IsHost)
	assert.Equal(t, "alice", rm.Players[0].Nickname)
}

func TestCreateRoomAppliesPatchAndClampsPenalty(t *testing.T) {
	reg := NewRegistry()
	penalty := 5
	private := false
	custom := models.GameModeCustom
	rm := reg.CreateRoom("Friday Night", uuid.New(), "alice", &models.SettingsPatch{
		WrongAnswerPenalty: &penalty,
		IsPublic:           &private,
		GameMode:           &custom,
	})

	assert.Equal(t, 0, rm.Settings.WrongAnswerPenalty, "positive penalties clamp to zero")
	assert.False(t, rm.Settings.IsPublic)
	assert.Equal(t, models.GameModeCustom, rm.Settings.GameMode)
}

func TestJoinRoomRejectsDuplicateNickname(t *testing.T) {
	reg := NewRegistry()
	rm := reg.CreateRoom("", uuid.New(), "Alice", nil)

	_, err := reg.JoinRoom(rm.ID, uuid.New(), "alice")
	assert.ErrorIs(t, err, ErrNicknameTaken, "nickname comparison is case-insensitive")

	_, err = reg.JoinRoom(rm.ID, uuid.New(), "bob")
	assert.NoError(t, err)
}

func TestJoinRoomErrors(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.JoinRoom("NOPE1234", uuid.New(), "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	rm := reg.CreateRoom("", uuid.New(), "alice", nil)
	reg.SetState(rm.ID, models.RoomStateFinished)
	_, err = reg.JoinRoom(rm.ID, uuid.New(), "bob")
	assert.ErrorIs(t, err, ErrRoomFinished)
}

func TestJoinRoomReportsMidGame(t *testing.T) {
	reg := NewRegistry()
	rm := reg.CreateRoom("", uuid.New(), "alice", nil)

	midGame, err := reg.JoinRoom(rm.ID, uuid.New(), "bob")
	require.NoError(t, err)
	assert.False(t, midGame)

	reg.SetState(rm.ID, models.RoomStatePlaying)
	midGame, err = reg.JoinRoom(rm.ID, uuid.New(), "carol")
	require.NoError(t, err)
	assert.True(t, midGame)
}

func TestRemovePlayerReassignsHost(t *testing.T) {
	reg := NewRegistry()
	hostID := uuid.New()
	bobID := uuid.New()
	rm := reg.CreateRoom("", hostID, "alice", nil)
	_, err := reg.JoinRoom(rm.ID, bobID, "bob")
	require.NoError(t, err)
	_, err = reg.JoinRoom(rm.ID, uuid.New(), "carol")
	require.NoError(t, err)

	res, ok := reg.RemovePlayer(rm.ID, hostID)
	require.True(t, ok)
	assert.True(t, res.WasHost)
	assert.False(t, res.RoomDeleted)
	assert.Equal(t, bobID, res.NewHostID, "next player by join order inherits the host role")

	snap, ok := reg.Snapshot(rm.ID)
	require.True(t, ok)
	assert.Equal(t, bobID, snap.HostID)
	assert.True(t, snap.Players[0].IsHost)
}

func TestRemoveLastPlayerDeletesRoom(t *testing.T) {
	reg := NewRegistry()
	hostID := uuid.New()
	rm := reg.CreateRoom("", hostID, "alice", nil)

	res, ok := reg.RemovePlayer(rm.ID, hostID)
	require.True(t, ok)
	assert.True(t, res.RoomDeleted)

	_, ok = reg.Snapshot(rm.ID)
	assert.False(t, ok)
}

func TestAdjustScoreAllowsNegative(t *testing.T) {
	reg := NewRegistry()
	hostID := uuid.New()
	rm := reg.CreateRoom("", hostID, "alice", nil)

	reg.AdjustScore(rm.ID, hostID, -3)
	reg.AdjustScore(rm.ID, hostID, -3)
	p, ok := reg.Player(rm.ID, hostID)
	require.True(t, ok)
	assert.Equal(t, -6, p.Score, "scores have no floor")
}

func TestStandingsSortedByScore(t *testing.T) {
	reg := NewRegistry()
	hostID := uuid.New()
	bobID := uuid.New()
	rm := reg.CreateRoom("", hostID, "alice", nil)
	_, err := reg.JoinRoom(rm.ID, bobID, "bob")
	require.NoError(t, err)

	reg.AdjustScore(rm.ID, bobID, 15)
	reg.AdjustScore(rm.ID, hostID, 7)

	standings := reg.Standings(rm.ID)
	require.Len(t, standings, 2)
	assert.Equal(t, bobID, standings[0].ID)
	assert.Equal(t, hostID, standings[1].ID)
}

func TestPublicRoomsFiltersPrivateAndActive(t *testing.T) {
	reg := NewRegistry()
	open := reg.CreateRoom("Open", uuid.New(), "alice", nil)

	private := false
	reg.CreateRoom("Hidden", uuid.New(), "bob", &models.SettingsPatch{IsPublic: &private})

	playing := reg.CreateRoom("Busy", uuid.New(), "carol", nil)
	reg.SetState(playing.ID, models.RoomStatePlaying)

	rooms := reg.PublicRooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, open.ID, rooms[0].ID)
	assert.Equal(t, "alice", rooms[0].HostNickname)
	assert.Equal(t, 1, rooms[0].PlayerCount)
}

func TestUpdateSettingsMergesPatch(t *testing.T) {
	reg := NewRegistry()
	rm := reg.CreateRoom("", uuid.New(), "alice", nil)

	penalty := -1
	reg.UpdateSettings(rm.ID, &models.SettingsPatch{WrongAnswerPenalty: &penalty})

	snap, ok := reg.Snapshot(rm.ID)
	require.True(t, ok)
	assert.Equal(t, -1, snap.Settings.WrongAnswerPenalty)
	assert.True(t, snap.Settings.IsPublic, "untouched fields keep their values")
	assert.Equal(t, models.GameModeStandard, snap.Settings.GameMode)
}
