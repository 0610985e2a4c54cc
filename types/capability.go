package types

import "context"

// Runtime is the narrow runtime surface handed to capabilities. The
// concrete orchestrator implements a much larger API; handlers that need
// it can type-assert. Keeping this interface small keeps actions and
// evaluators testable without a full runtime.
type Runtime interface {
	// AgentID returns the agent's account id.
	AgentID() UUID
	// Character returns the immutable persona configuration.
	Character() *Character
	// ConversationLength returns the configured recent-message window.
	ConversationLength() int
}

// HandlerCallback receives each response produced by an action handler.
type HandlerCallback func(ctx context.Context, response Content) ([]Memory, error)

// ValidateFn decides whether a capability is currently applicable.
type ValidateFn func(ctx context.Context, rt Runtime, message Memory, state *State) (bool, error)

// HandlerFn performs a capability's side effect.
type HandlerFn func(ctx context.Context, rt Runtime, message Memory, state *State, options map[string]any, callback HandlerCallback) error

// ActionExample is one turn of an example exchange demonstrating an action.
type ActionExample struct {
	User    string  `json:"user"`
	Content Content `json:"content"`
}

// Action is a turn-time capability the model can request by name.
// Handler may be nil; a matched action without a handler is logged and
// skipped rather than failing the conversation turn.
type Action struct {
	Name        string
	Similes     []string
	Description string
	Examples    [][]ActionExample
	Validate    ValidateFn
	Handler     HandlerFn
}

// EvaluationExample demonstrates an evaluator's selection criteria.
type EvaluationExample struct {
	Context  string   `json:"context"`
	Messages []string `json:"messages"`
	Outcome  string   `json:"outcome"`
}

// Evaluator is a post-turn hook that inspects the conversation and
// optionally performs a side effect. AlwaysRun evaluators are considered
// even for turns that produced no response.
type Evaluator struct {
	Name        string
	Description string
	Similes     []string
	Examples    []EvaluationExample
	AlwaysRun   bool
	Validate    ValidateFn
	Handler     HandlerFn
}

// ContextProvider contributes a dynamic section to composed state.
type ContextProvider interface {
	// Get returns a formatted context section, or "" when it has nothing
	// to contribute for this message.
	Get(ctx context.Context, rt Runtime, message Memory, state *State) (string, error)
}

// ContextProviderFunc adapts a plain function to ContextProvider.
type ContextProviderFunc func(ctx context.Context, rt Runtime, message Memory, state *State) (string, error)

// Get implements ContextProvider.
func (f ContextProviderFunc) Get(ctx context.Context, rt Runtime, message Memory, state *State) (string, error) {
	return f(ctx, rt, message, state)
}

// Service is a long-lived named dependency registered on the runtime
// (speech synthesis, image description, local text generation).
type Service interface {
	// Name returns the unique service identifier.
	Name() string
	// Initialize is called once when the service is registered.
	Initialize(ctx context.Context, rt Runtime) error
}

// Plugin bundles capabilities registered together.
type Plugin struct {
	Name        string
	Description string
	Actions     []Action
	Evaluators  []Evaluator
	Providers   []ContextProvider
	Services    []Service
}
