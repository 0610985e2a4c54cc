package memdb

import (
	"context"
	"testing"

	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(roomID types.UUID, text string, embedding []float64) *types.Memory {
	return &types.Memory{
		ID:        types.NewID(),
		RoomID:    roomID,
		UserID:    types.NewID(),
		Content:   types.Content{Text: text},
		Embedding: embedding,
	}
}

func TestCreateMemoryIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	roomID := types.NewID()

	m := newMemory(roomID, "hello", nil)
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, m, false))

	// same ID with different content must be a silent no-op
	dup := *m
	dup.Content.Text = "changed"
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, &dup, false))

	got, err := s.GetMemoryByID(ctx, database.TableMessages, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Content.Text)

	n, err := s.CountMemories(ctx, database.TableMessages, roomID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetMemoriesNewestFirstWithCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	roomID := types.NewID()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateMemory(ctx, database.TableMessages,
			newMemory(roomID, string(rune('a'+i)), nil), false))
	}

	got, err := s.GetMemories(ctx, database.GetMemoriesParams{
		RoomID:    roomID,
		TableName: database.TableMessages,
		Count:     3,
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
	}
}

func TestSearchMemoriesByEmbedding(t *testing.T) {
	ctx := context.Background()
	s := New()
	roomID := types.NewID()

	near := newMemory(roomID, "near", []float64{1, 0, 0})
	far := newMemory(roomID, "far", []float64{0, 1, 0})
	zero := newMemory(roomID, "placeholder", []float64{0, 0, 0})
	for _, m := range []*types.Memory{near, far, zero} {
		require.NoError(t, s.CreateMemory(ctx, database.TableFacts, m, false))
	}

	got, err := s.SearchMemoriesByEmbedding(ctx, database.SearchMemoriesParams{
		TableName:      database.TableFacts,
		RoomID:         roomID,
		Embedding:      []float64{1, 0.1, 0},
		MatchThreshold: 0.1,
		Count:          10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].Content.Text)
}

func TestSearchRejectsEmptyEmbedding(t *testing.T) {
	s := New()
	_, err := s.SearchMemoriesByEmbedding(context.Background(), database.SearchMemoriesParams{
		TableName: database.TableFacts,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRemoveAllMemoriesScopedToRoom(t *testing.T) {
	ctx := context.Background()
	s := New()
	roomA := types.NewID()
	roomB := types.NewID()

	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, newMemory(roomA, "a", nil), false))
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, newMemory(roomB, "b", nil), false))

	require.NoError(t, s.RemoveAllMemories(ctx, database.TableMessages, roomA))

	na, _ := s.CountMemories(ctx, database.TableMessages, roomA, false)
	nb, _ := s.CountMemories(ctx, database.TableMessages, roomB, false)
	assert.Equal(t, 0, na)
	assert.Equal(t, 1, nb)
}

func TestGetCachedEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := New()
	roomID := types.NewID()

	m := newMemory(roomID, "the quick brown fox", []float64{0.5, 0.5})
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, m, false))

	vec, err := s.GetCachedEmbeddings(ctx, database.TableMessages, "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, vec)

	vec, err = s.GetCachedEmbeddings(ctx, database.TableMessages, "never seen")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestGoalLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	roomID := types.NewID()
	userID := types.NewID()

	g := &types.Goal{
		ID:     types.NewID(),
		Name:   "learn go",
		RoomID: roomID,
		UserID: userID,
		Status: types.GoalInProgress,
		Objectives: []types.Objective{
			{Description: "read the tour"},
		},
	}
	require.NoError(t, s.CreateGoal(ctx, g))

	got, err := s.GetGoals(ctx, roomID, &userID, true, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, s.UpdateGoalStatus(ctx, g.ID, types.GoalDone))
	got, err = s.GetGoals(ctx, roomID, nil, true, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.RemoveAllGoals(ctx, roomID))
	got, err = s.GetGoals(ctx, roomID, nil, false, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParticipantsAndActors(t *testing.T) {
	ctx := context.Background()
	s := New()
	roomID, err := s.CreateRoom(ctx, types.UUID{})
	require.NoError(t, err)

	user := &types.Account{ID: types.NewID(), Name: "Ada", Username: "ada"}
	require.NoError(t, s.CreateAccount(ctx, user))
	require.NoError(t, s.AddParticipant(ctx, user.ID, roomID))

	ids, err := s.GetParticipantsForRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []types.UUID{user.ID}, ids)

	actors, err := s.GetActorDetails(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.Equal(t, "Ada", actors[0].Name)

	rooms, err := s.GetRoomsForParticipant(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.UUID{roomID}, rooms)
}

func TestRelationshipIsSymmetric(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := types.NewID()
	b := types.NewID()

	require.NoError(t, s.CreateRelationship(ctx, a, b))
	require.NoError(t, s.CreateRelationship(ctx, b, a)) // no duplicate

	r, err := s.GetRelationship(ctx, b, a)
	require.NoError(t, err)
	require.NotNil(t, r)

	rels, err := s.GetRelationships(ctx, a)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestKVCache(t *testing.T) {
	ctx := context.Background()
	s := New()
	agentID := types.NewID()

	_, ok, err := s.GetCache(ctx, agentID, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetCache(ctx, agentID, "k", "v"))
	v, ok, err := s.GetCache(ctx, agentID, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.DeleteCache(ctx, agentID, "k"))
	_, ok, _ = s.GetCache(ctx, agentID, "k")
	assert.False(t, ok)
}
