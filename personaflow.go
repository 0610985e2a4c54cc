// Package personaflow provides a top-level convenience entry point for
// creating agent runtimes with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/personaflow"
//
//	rt, err := personaflow.New(ctx, personaflow.WithOpenAI("Nova"))
//	rt, err := personaflow.New(ctx, personaflow.WithCharacterFile("characters/nova.json"))
//	rt, err := personaflow.New(ctx, personaflow.WithCharacter(c), personaflow.WithSQLite("persona.db"))
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package personaflow

import (
	"context"

	"github.com/BaSui01/personaflow/quick"
	"github.com/BaSui01/personaflow/runtime"
)

// Option configures the runtime created by [New].
type Option = quick.Option

// New creates a [runtime.AgentRuntime] with minimal configuration.
// At minimum, a character must be specified via [WithCharacter],
// [WithCharacterFile], or a provider shortcut like [WithOpenAI].
func New(ctx context.Context, opts ...Option) (*runtime.AgentRuntime, error) {
	return quick.New(ctx, opts...)
}

// Re-export option constructors so callers never need to import quick/.

// WithCharacter sets a pre-built character definition.
var WithCharacter = quick.WithCharacter

// WithCharacterFile loads the character from a JSON or YAML file.
var WithCharacterFile = quick.WithCharacterFile

// WithOpenAI creates a minimal OpenAI-backed character. API key from OPENAI_API_KEY env.
var WithOpenAI = quick.WithOpenAI

// WithAnthropic creates a minimal Anthropic-backed character. API key from ANTHROPIC_API_KEY env.
var WithAnthropic = quick.WithAnthropic

// WithOllama creates a minimal character served by a local Ollama instance.
var WithOllama = quick.WithOllama

// WithDB sets a pre-built storage adapter.
var WithDB = quick.WithDB

// WithSQLite stores memories in a SQLite database at the given path.
var WithSQLite = quick.WithSQLite

// WithCacheAdapter sets the cache backend.
var WithCacheAdapter = quick.WithCacheAdapter

// WithPlugin registers a plugin bundle on the runtime.
var WithPlugin = quick.WithPlugin

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithAPIKey overrides the API key for provider shortcuts.
var WithAPIKey = quick.WithAPIKey
