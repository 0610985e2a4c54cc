package sqlitedb

import (
	"context"
	"testing"

	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	roomID := types.NewID()

	m := &types.Memory{
		ID:        types.NewID(),
		AgentID:   types.NewID(),
		RoomID:    roomID,
		UserID:    types.NewID(),
		Content:   types.Content{Text: "persisted", Action: "NONE"},
		Embedding: []float64{0.1, 0.2, 0.3},
	}
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, m, true))

	got, err := s.GetMemoryByID(ctx, database.TableMessages, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "persisted", got.Content.Text)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got.Embedding)
	assert.True(t, got.Unique)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateMemoryDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	roomID := types.NewID()

	m := &types.Memory{
		ID:      types.NewID(),
		AgentID: types.NewID(),
		RoomID:  roomID,
		UserID:  types.NewID(),
		Content: types.Content{Text: "original"},
	}
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, m, false))

	dup := *m
	dup.Content.Text = "changed"
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, &dup, false))

	got, err := s.GetMemoryByID(ctx, database.TableMessages, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content.Text)

	n, err := s.CountMemories(ctx, database.TableMessages, roomID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTablesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	roomID := types.NewID()

	m := &types.Memory{
		ID:      types.NewID(),
		AgentID: types.NewID(),
		RoomID:  roomID,
		UserID:  types.NewID(),
		Content: types.Content{Text: "a fact"},
	}
	require.NoError(t, s.CreateMemory(ctx, database.TableFacts, m, false))

	got, err := s.GetMemoryByID(ctx, database.TableMessages, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetMemoryByID(ctx, database.TableFacts, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSearchMemoriesByEmbeddingRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	roomID := types.NewID()
	agentID := types.NewID()

	add := func(text string, vec []float64) {
		require.NoError(t, s.CreateMemory(ctx, database.TableFragments, &types.Memory{
			ID:        types.NewID(),
			AgentID:   agentID,
			RoomID:    roomID,
			UserID:    agentID,
			Content:   types.Content{Text: text},
			Embedding: vec,
		}, false))
	}
	add("exact", []float64{1, 0})
	add("close", []float64{0.9, 0.1})
	add("orthogonal", []float64{0, 1})

	got, err := s.SearchMemoriesByEmbedding(ctx, database.SearchMemoriesParams{
		TableName:      database.TableFragments,
		RoomID:         roomID,
		Embedding:      []float64{1, 0},
		MatchThreshold: 0.5,
		Count:          10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Content.Text)
	assert.Equal(t, "close", got[1].Content.Text)
}

func TestGetCachedEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	m := &types.Memory{
		ID:        types.NewID(),
		AgentID:   types.NewID(),
		RoomID:    types.NewID(),
		UserID:    types.NewID(),
		Content:   types.Content{Text: "seen before"},
		Embedding: []float64{0.4, 0.6},
	}
	require.NoError(t, s.CreateMemory(ctx, database.TableMessages, m, false))

	vec, err := s.GetCachedEmbeddings(ctx, database.TableMessages, "seen before")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.6}, vec)

	vec, err = s.GetCachedEmbeddings(ctx, database.TableMessages, "unseen")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestGoalCRUD(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	roomID := types.NewID()
	userID := types.NewID()

	g := &types.Goal{
		ID:     types.NewID(),
		Name:   "ship the release",
		RoomID: roomID,
		UserID: userID,
		Status: types.GoalInProgress,
		Objectives: []types.Objective{
			{Description: "write tests"},
			{Description: "tag the build"},
		},
	}
	require.NoError(t, s.CreateGoal(ctx, g))

	goals, err := s.GetGoals(ctx, roomID, &userID, true, 0)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Len(t, goals[0].Objectives, 2)

	g.Objectives[0].Completed = true
	require.NoError(t, s.UpdateGoal(ctx, g))

	require.NoError(t, s.UpdateGoalStatus(ctx, g.ID, types.GoalDone))
	goals, err = s.GetGoals(ctx, roomID, nil, true, 0)
	require.NoError(t, err)
	assert.Empty(t, goals)

	assert.Error(t, s.UpdateGoalStatus(ctx, types.NewID(), types.GoalDone))
}

func TestRoomsParticipantsActors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	roomID, err := s.CreateRoom(ctx, types.UUID{})
	require.NoError(t, err)

	// creating the same room again is idempotent
	again, err := s.CreateRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, roomID, again)

	user := &types.Account{ID: types.NewID(), Name: "Grace", Username: "grace"}
	require.NoError(t, s.CreateAccount(ctx, user))
	require.NoError(t, s.AddParticipant(ctx, user.ID, roomID))
	require.NoError(t, s.AddParticipant(ctx, user.ID, roomID)) // idempotent

	ids, err := s.GetParticipantsForRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []types.UUID{user.ID}, ids)

	actors, err := s.GetActorDetails(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.Equal(t, "Grace", actors[0].Name)

	require.NoError(t, s.RemoveRoom(ctx, roomID))
	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Nil(t, room)
	ids, err = s.GetParticipantsForRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRelationshipPairIsCanonical(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := types.NewID()
	b := types.NewID()

	require.NoError(t, s.CreateRelationship(ctx, a, b))
	require.NoError(t, s.CreateRelationship(ctx, b, a))

	r, err := s.GetRelationship(ctx, b, a)
	require.NoError(t, err)
	require.NotNil(t, r)

	rels, err := s.GetRelationships(ctx, a)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestKVCacheUpsert(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	agentID := types.NewID()

	require.NoError(t, s.SetCache(ctx, agentID, "greeting", "hello"))
	require.NoError(t, s.SetCache(ctx, agentID, "greeting", "hi"))

	v, ok, err := s.GetCache(ctx, agentID, "greeting")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hi", v)

	require.NoError(t, s.DeleteCache(ctx, agentID, "greeting"))
	_, ok, err = s.GetCache(ctx, agentID, "greeting")
	require.NoError(t, err)
	assert.False(t, ok)
}
