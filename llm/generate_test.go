package llm

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/personaflow/llm/retry"
	"github.com/BaSui01/personaflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedProvider returns canned responses in order, then repeats the last.
type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Completion(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return &ChatResponse{
		Model: req.Model,
		Choices: []ChatChoice{
			{Message: Message{Role: RoleAssistant, Content: p.responses[i]}},
		},
		Usage: ChatUsage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func testCharacter() *types.Character {
	return &types.Character{
		Name:          "tester",
		ModelProvider: types.ProviderOpenAI,
	}
}

func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestClient(t *testing.T, stub Provider, policy retry.Policy) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Character: testCharacter(),
		Retry:     policy,
	}, nil, zap.NewNop())
	require.NoError(t, err)
	c.Registry().Register(types.ProviderOpenAI, stub)
	return c
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(ClientConfig{
		Character: &types.Character{Name: "x", ModelProvider: "banana"},
	}, nil, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedProvider, types.GetErrorCode(err))
}

func TestGenerateTextReturnsRawOutput(t *testing.T) {
	stub := &scriptedProvider{responses: []string{"  hello world  "}}
	c := newTestClient(t, stub, fastPolicy(3))

	out, err := c.GenerateText(context.Background(), &TextRequest{Context: "say hi"})
	require.NoError(t, err)
	assert.Equal(t, "  hello world  ", out)
	assert.Equal(t, 1, stub.calls)
}

func TestGenerateTextEmptyContext(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{responses: []string{"x"}}, fastPolicy(1))
	_, err := c.GenerateText(context.Background(), &TextRequest{})
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyContent, types.GetErrorCode(err))
}

func TestGenerateTrueOrFalseRetriesUntilParseable(t *testing.T) {
	// garbage twice, then a parseable answer: must succeed on attempt 3
	stub := &scriptedProvider{responses: []string{
		"I am not sure what you mean.",
		"Let me think about that...",
		"YES",
	}}
	c := newTestClient(t, stub, fastPolicy(5))

	v, err := c.GenerateTrueOrFalse(context.Background(), "is the sky blue?")
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, 3, stub.calls)
}

func TestGenerateTrueOrFalseExhaustsAttempts(t *testing.T) {
	stub := &scriptedProvider{responses: []string{"gibberish"}}
	c := newTestClient(t, stub, fastPolicy(3))

	_, err := c.GenerateTrueOrFalse(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, types.ErrRetriesExhausted, types.GetErrorCode(err))
	assert.Equal(t, 3, stub.calls)
}

func TestGenerateShouldRespond(t *testing.T) {
	stub := &scriptedProvider{responses: []string{"[IGNORE]\nnot my conversation"}}
	c := newTestClient(t, stub, fastPolicy(3))

	v, err := c.GenerateShouldRespond(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, "IGNORE", v)
}

func TestGenerateTextArray(t *testing.T) {
	stub := &scriptedProvider{responses: []string{
		"Here you go:\n```json\n[\"alpha\", \"beta\"]\n```",
	}}
	c := newTestClient(t, stub, fastPolicy(3))

	v, err := c.GenerateTextArray(context.Background(), "list two greek letters")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, v)
}

func TestGenerateObjectRecoversFromFencedJSON(t *testing.T) {
	stub := &scriptedProvider{responses: []string{
		"Sure!\n```json\n{\"name\": \"ada\", \"age\": 36,}\n```\nanything else?",
	}}
	c := newTestClient(t, stub, fastPolicy(3))

	v, err := c.GenerateObject(context.Background(), "describe ada")
	require.NoError(t, err)
	assert.Equal(t, "ada", v["name"])
	assert.Equal(t, float64(36), v["age"])
}

func TestGenerateMessageResponse(t *testing.T) {
	stub := &scriptedProvider{responses: []string{
		"not json at all",
		`{"text": "hello there", "action": "WAVE"}`,
	}}
	c := newTestClient(t, stub, fastPolicy(4))

	v, err := c.GenerateMessageResponse(context.Background(), "greet the user")
	require.NoError(t, err)
	assert.Equal(t, "hello there", v.Text)
	assert.Equal(t, "WAVE", v.Action)
	assert.Equal(t, 2, stub.calls)
}

func TestGenerateObjectV2SchemaValidation(t *testing.T) {
	schema := `{
		"type": "object",
		"properties": {"mood": {"type": "string"}},
		"required": ["mood"]
	}`
	stub := &scriptedProvider{responses: []string{
		`{"wrong_key": "happy"}`,
		`{"mood": "happy"}`,
	}}
	c := newTestClient(t, stub, fastPolicy(4))

	v, err := c.GenerateObjectV2(context.Background(), &ObjectRequest{
		Context: "how do you feel",
		Schema:  schema,
	})
	require.NoError(t, err)
	assert.Equal(t, "happy", v["mood"])
	assert.Equal(t, 2, stub.calls)
}

func TestGenerateObjectV2BadSchema(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{responses: []string{"{}"}}, fastPolicy(1))
	_, err := c.GenerateObjectV2(context.Background(), &ObjectRequest{
		Context: "x",
		Schema:  `{"type": 42}`,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestGenerateImageMissingProvider(t *testing.T) {
	c, err := NewClient(ClientConfig{
		Character: &types.Character{Name: "x", ModelProvider: types.ProviderAnthropic},
	}, nil, zap.NewNop())
	require.NoError(t, err)

	// anthropic has no image backend registered
	res := c.GenerateImage(context.Background(), &ImageRequest{Prompt: "a cat"})
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

type stubImageProvider struct{ result *ImageResult }

func (s *stubImageProvider) Name() string { return "stub" }
func (s *stubImageProvider) GenerateImage(context.Context, *ImageRequest) *ImageResult {
	return s.result
}

func TestGenerateImageSuccessEnvelope(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{responses: []string{"x"}}, fastPolicy(1))
	c.Registry().RegisterImage(types.ProviderOpenAI, &stubImageProvider{
		result: &ImageResult{Success: true, Images: []string{"https://img.example/1.png"}},
	})

	res := c.GenerateImage(context.Background(), &ImageRequest{Prompt: "a lighthouse"})
	require.True(t, res.Success)
	assert.Len(t, res.Images, 1)
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(types.ProviderGroq)
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingAdapter, types.GetErrorCode(err))
}

func TestModelTableCharacterOverride(t *testing.T) {
	table := DefaultModelTable()

	model, err := table.Resolve(types.ProviderOpenAI, types.TierSmall, "my-finetune")
	require.NoError(t, err)
	assert.Equal(t, "my-finetune", model)

	model, err = table.Resolve(types.ProviderOpenAI, types.TierSmall, "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model)
}
