package runtime

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/personaflow/database/memdb"
	"github.com/BaSui01/personaflow/llm"
	"github.com/BaSui01/personaflow/llm/retry"
	"github.com/BaSui01/personaflow/testutil"
	"github.com/BaSui01/personaflow/testutil/fixtures"
	"github.com/BaSui01/personaflow/testutil/mocks"
	"github.com/BaSui01/personaflow/types"
)

func testCharacter() *types.Character {
	return fixtures.Character()
}

func newRuntime(t *testing.T, stub *mocks.MockProvider) *AgentRuntime {
	t.Helper()
	ctx := testutil.TestContext(t)

	client, err := llm.NewClient(llm.ClientConfig{
		Character: testCharacter(),
		Retry: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	}, nil, zap.NewNop())
	require.NoError(t, err)
	if stub != nil {
		client.Registry().Register(types.ProviderOpenAI, stub)
	}

	rt, err := New(ctx, Options{
		Character: testCharacter(),
		DB:        memdb.New(),
		Client:    client,
		Embedder:  mocks.NewMockEmbedder(4),
		Logger:    zap.NewNop(),
		Rand:      rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	return rt
}

func seedConversation(t *testing.T, rt *AgentRuntime, roomID types.UUID, userID types.UUID, n int) {
	t.Helper()
	ctx := testutil.TestContext(t)
	require.NoError(t, rt.EnsureConnection(ctx, userID, roomID, "Sam"))

	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		sender := userID
		if i%2 == 1 {
			sender = rt.AgentID()
		}
		require.NoError(t, rt.MessageManager().CreateMemory(ctx, &types.Memory{
			ID:        types.NewID(),
			RoomID:    roomID,
			UserID:    sender,
			Content:   types.Content{Text: fmt.Sprintf("message %d", i)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, false))
	}
}

func TestNewRejectsInvalidProvider(t *testing.T) {
	ch := testCharacter()
	ch.ModelProvider = "carrier-pigeon"
	_, err := New(context.Background(), Options{Character: ch, DB: memdb.New()})
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedProvider, types.GetErrorCode(err))
}

func TestNewRequiresStorage(t *testing.T) {
	_, err := New(context.Background(), Options{Character: testCharacter()})
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingService, types.GetErrorCode(err))
}

func TestEnsureAgentExistsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	account, err := rt.DB().GetAccountByID(ctx, rt.AgentID())
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "Nova", account.Name)

	selfRoom := types.RoomFor(rt.AgentID())
	room, err := rt.DB().GetRoom(ctx, selfRoom)
	require.NoError(t, err)
	require.NotNil(t, room)

	// bootstrapping again must not duplicate anything
	require.NoError(t, rt.ensureAgentExists(ctx))
	ids, err := rt.DB().GetParticipantsForRoom(ctx, selfRoom)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRegisterActionIsIdempotent(t *testing.T) {
	rt := newRuntime(t, nil)

	rt.RegisterAction(types.Action{Name: "WAVE", Description: "wave hello"})
	rt.RegisterAction(types.Action{Name: "WAVE", Description: "a different wave"})

	assert.Len(t, rt.actions, 1)
	assert.Equal(t, "wave hello", rt.actions[0].Description)
}

func TestComposeStateRecentMessagesBounded(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	roomID := types.NewID()
	userID := types.NewID()

	seedConversation(t, rt, roomID, userID, 40)

	state, err := rt.ComposeState(ctx, &types.Memory{
		RoomID:  roomID,
		UserID:  userID,
		Content: types.Content{Text: "hello there"},
	}, nil)
	require.NoError(t, err)

	lines := strings.Split(state.RecentMessages, "\n")
	assert.LessOrEqual(t, len(lines), rt.ConversationLength())
	assert.Len(t, state.RecentMessagesData, rt.ConversationLength())

	// no goals were created: rendered as empty string, not omitted
	assert.Equal(t, "", state.Goals)
	assert.Empty(t, state.GoalsData)

	assert.Equal(t, "Nova", state.AgentName)
	assert.Equal(t, "Sam", state.SenderName)
	assert.Contains(t, state.Bio, "research assistant")
	assert.NotEmpty(t, state.Adjective)
	assert.Contains(t, state.MessageDirections, "Be concise.")
}

func TestComposeStateExtraFieldsWin(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	roomID := types.NewID()
	userID := types.NewID()
	seedConversation(t, rt, roomID, userID, 2)

	state, err := rt.ComposeState(ctx, &types.Memory{
		RoomID:  roomID,
		UserID:  userID,
		Content: types.Content{Text: "hi"},
	}, map[string]any{"goals": "overridden", "customKey": "v"})
	require.NoError(t, err)

	placeholders := state.Placeholders()
	assert.Equal(t, "overridden", placeholders["goals"])
	assert.Equal(t, "v", placeholders["customKey"])
}

func TestComposeStateRandomizesExampleNames(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	roomID := types.NewID()
	userID := types.NewID()
	seedConversation(t, rt, roomID, userID, 2)

	state, err := rt.ComposeState(ctx, &types.Memory{
		RoomID:  roomID,
		UserID:  userID,
		Content: types.Content{Text: "hi"},
	}, nil)
	require.NoError(t, err)

	assert.NotContains(t, state.CharacterMessageExamples, "{{user1}}")
	assert.Contains(t, state.CharacterMessageExamples, "Nova: hello!")
}

func TestAttachmentRedaction(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	roomID := types.NewID()
	userID := types.NewID()
	require.NoError(t, rt.EnsureConnection(ctx, userID, roomID, "Sam"))

	now := time.Now()
	old := &types.Memory{
		ID:     types.NewID(),
		RoomID: roomID,
		UserID: userID,
		Content: types.Content{
			Text:        "old message",
			Attachments: []types.Media{{ID: "a1", Title: "old.png", Text: "secret old content"}},
		},
		CreatedAt: now.Add(-3 * time.Hour),
	}
	fresh := &types.Memory{
		ID:     types.NewID(),
		RoomID: roomID,
		UserID: userID,
		Content: types.Content{
			Text:        "new message",
			Attachments: []types.Media{{ID: "a2", Title: "new.png", Text: "fresh content"}},
		},
		CreatedAt: now,
	}
	require.NoError(t, rt.MessageManager().CreateMemory(ctx, old, false))
	require.NoError(t, rt.MessageManager().CreateMemory(ctx, fresh, false))

	state, err := rt.ComposeState(ctx, &types.Memory{
		RoomID:  roomID,
		UserID:  userID,
		Content: types.Content{Text: "what did you send"},
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, state.Attachments, "fresh content")
	assert.NotContains(t, state.Attachments, "secret old content")
	assert.Contains(t, state.Attachments, hiddenAttachmentMarker)
}

func TestUpdateRecentMessageState(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	roomID := types.NewID()
	userID := types.NewID()
	seedConversation(t, rt, roomID, userID, 2)

	state, err := rt.ComposeState(ctx, &types.Memory{
		RoomID:  roomID,
		UserID:  userID,
		Content: types.Content{Text: "hi"},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, rt.MessageManager().CreateMemory(ctx, &types.Memory{
		ID:      types.NewID(),
		RoomID:  roomID,
		UserID:  rt.AgentID(),
		Content: types.Content{Text: "a brand new reply"},
	}, false))

	updated, err := rt.UpdateRecentMessageState(ctx, state)
	require.NoError(t, err)
	assert.Contains(t, updated.RecentMessages, "a brand new reply")
	assert.NotContains(t, state.RecentMessages, "a brand new reply")
}

func TestRemoveAllMemoriesLeavesRoomEmpty(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	roomID := types.NewID()
	userID := types.NewID()
	seedConversation(t, rt, roomID, userID, 10)

	require.NoError(t, rt.MessageManager().RemoveAllMemories(ctx, roomID))

	got, err := rt.MessageManager().GetMemories(ctx, roomID, 0, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProcessActionsNormalization(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	var invoked []string
	handler := func(name string) types.HandlerFn {
		return func(context.Context, types.Runtime, types.Memory, *types.State, map[string]any, types.HandlerCallback) error {
			invoked = append(invoked, name)
			return nil
		}
	}
	rt.RegisterAction(types.Action{
		Name:    "CONTINUE_CONVERSATION",
		Similes: []string{"KEEP_TALKING"},
		Handler: handler("continue"),
	})
	rt.RegisterAction(types.Action{Name: "MUTE", Handler: handler("mute")})

	message := &types.Memory{RoomID: types.NewID(), Content: types.Content{Text: "hi"}}
	state := &types.State{}

	run := func(action string) {
		require.NoError(t, rt.ProcessActions(ctx, message, []types.Memory{
			{Content: types.Content{Text: "ok", Action: action}},
		}, state, nil))
	}

	run("continue_conversation")        // case-insensitive
	run("ContinueConversation")         // underscore-insensitive
	run("keep talking")                 // simile
	run("continue")                     // substring of the name
	run("please continue_conversation") // name is a substring of the output
	assert.Equal(t, []string{"continue", "continue", "continue", "continue", "continue"}, invoked)

	// unknown action and NONE are non-fatal no-ops
	run("TELEPORT")
	run("NONE")
	run("")
	assert.Len(t, invoked, 5)
}

func TestProcessActionsHandlerlessActionIsSkipped(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	rt.RegisterAction(types.Action{Name: "OBSERVE"})

	err := rt.ProcessActions(ctx, &types.Memory{}, []types.Memory{
		{Content: types.Content{Action: "OBSERVE"}},
	}, &types.State{}, nil)
	require.NoError(t, err)
}

func TestEvaluateRunsModelSelectedHandlers(t *testing.T) {
	ctx := context.Background()
	stub := mocks.NewMockProvider().WithResponses(`["FACT_EXTRACTOR"]`)
	rt := newRuntime(t, stub)

	var ran []string
	rt.RegisterEvaluator(types.Evaluator{
		Name:        "FACT_EXTRACTOR",
		Description: "extracts facts",
		Handler: func(context.Context, types.Runtime, types.Memory, *types.State, map[string]any, types.HandlerCallback) error {
			ran = append(ran, "FACT_EXTRACTOR")
			return nil
		},
	})
	rt.RegisterEvaluator(types.Evaluator{
		Name:        "GOAL_TRACKER",
		Description: "tracks goals",
		Handler: func(context.Context, types.Runtime, types.Memory, *types.State, map[string]any, types.HandlerCallback) error {
			ran = append(ran, "GOAL_TRACKER")
			return nil
		},
	})

	executed, err := rt.Evaluate(ctx, &types.Memory{Content: types.Content{Text: "hi"}}, &types.State{}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"FACT_EXTRACTOR"}, executed)
	assert.Equal(t, []string{"FACT_EXTRACTOR"}, ran)
}

func TestEvaluateSkipsNonAlwaysRunWithoutResponse(t *testing.T) {
	ctx := context.Background()
	stub := mocks.NewMockProvider().WithResponses(`["ALWAYS"]`)
	rt := newRuntime(t, stub)

	var ran []string
	rt.RegisterEvaluator(types.Evaluator{
		Name: "ONLY_ON_RESPONSE",
		Handler: func(context.Context, types.Runtime, types.Memory, *types.State, map[string]any, types.HandlerCallback) error {
			ran = append(ran, "ONLY_ON_RESPONSE")
			return nil
		},
	})
	rt.RegisterEvaluator(types.Evaluator{
		Name:      "ALWAYS",
		AlwaysRun: true,
		Handler: func(context.Context, types.Runtime, types.Memory, *types.State, map[string]any, types.HandlerCallback) error {
			ran = append(ran, "ALWAYS")
			return nil
		},
	})

	executed, err := rt.Evaluate(ctx, &types.Memory{}, &types.State{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALWAYS"}, executed)
}

func TestEvaluateNoCandidates(t *testing.T) {
	rt := newRuntime(t, nil)
	executed, err := rt.Evaluate(context.Background(), &types.Memory{}, &types.State{}, false)
	require.NoError(t, err)
	assert.Nil(t, executed)
}

func TestShouldRespond(t *testing.T) {
	stub := mocks.NewMockProvider().WithResponses("[RESPOND]\nthe user asked a direct question")
	rt := newRuntime(t, stub)

	decision, err := rt.ShouldRespond(context.Background(), &types.State{
		AgentName:      "Nova",
		RecentMessages: "Sam: Nova, what time is it?",
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionRespond, decision)
}

func TestPluginMerge(t *testing.T) {
	ctx := context.Background()
	client, err := llm.NewClient(llm.ClientConfig{Character: testCharacter()}, nil, zap.NewNop())
	require.NoError(t, err)

	rt, err := New(ctx, Options{
		Character: testCharacter(),
		DB:        memdb.New(),
		Client:    client,
		Embedder:  mocks.NewMockEmbedder(4),
		Actions:   []types.Action{{Name: "WAVE"}},
		Plugins: []types.Plugin{{
			Name:       "social",
			Actions:    []types.Action{{Name: "WAVE"}, {Name: "FOLLOW"}},
			Evaluators: []types.Evaluator{{Name: "SENTIMENT"}},
		}},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	// WAVE from the plugin is a duplicate and must not double-register
	assert.Len(t, rt.actions, 2)
	assert.Len(t, rt.evaluators, 1)
}

func TestRenderTemplateClearsUnknownPlaceholders(t *testing.T) {
	out := renderTemplate("hello {{name}}, {{missing}}!", map[string]any{"name": "world"})
	assert.Equal(t, "hello world, !", out)
}

func TestSetCharacterHotSwap(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := newRuntime(t, nil)
	roomID := types.NewID()
	userID := types.NewID()
	seedConversation(t, rt, roomID, userID, 2)

	updated := testCharacter()
	updated.Bio = types.StringList{"A rewritten persona."}
	updated.System = "Updated system prompt."
	require.NoError(t, rt.SetCharacter(updated))

	state, err := rt.ComposeState(ctx, &types.Memory{
		RoomID:  roomID,
		UserID:  userID,
		Content: types.Content{Text: "hi"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A rewritten persona.", state.Bio)
	assert.Equal(t, "Updated system prompt.", state.System)
	assert.Equal(t, updated.System, rt.Client().Character().System)
}

func TestSetCharacterRejectsProviderSwitch(t *testing.T) {
	rt := newRuntime(t, nil)

	updated := testCharacter()
	updated.ModelProvider = types.ProviderAnthropic
	require.Error(t, rt.SetCharacter(updated))

	// 原角色保持生效
	assert.Equal(t, types.ProviderOpenAI, rt.Character().ModelProvider)
}
