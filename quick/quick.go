// =============================================================================
// Package quick — One-Line Runtime Construction
// =============================================================================
// Provides a convenience entry point for creating an AgentRuntime with
// minimal boilerplate. Delegates to runtime.New internally.
//
// The package lives under quick/ (not root) so the root facade can
// re-export it without an import cycle.
//
// Usage:
//
//	import "github.com/BaSui01/personaflow/quick"
//
//	rt, err := quick.New(ctx, quick.WithOpenAI("Nova"))
//	rt, err := quick.New(ctx, quick.WithCharacterFile("characters/nova.json"))
//	rt, err := quick.New(ctx, quick.WithCharacter(myCharacter), quick.WithSQLite("persona.db"))
//
// =============================================================================
package quick

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/personaflow/cache"
	"github.com/BaSui01/personaflow/config"
	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/database/memdb"
	"github.com/BaSui01/personaflow/database/sqlitedb"
	"github.com/BaSui01/personaflow/runtime"
	"github.com/BaSui01/personaflow/types"
)

// Option configures the runtime created by New.
type Option func(*options)

type options struct {
	character     *types.Character
	characterPath string
	db            database.Adapter
	sqlitePath    string
	cacheAdapter  cache.Adapter
	plugins       []types.Plugin
	logger        *zap.Logger

	// Provider shortcut fields — used when character is nil.
	providerName types.ModelProvider
	agentName    string
	apiKey       string
}

// WithCharacter sets a pre-built character definition.
func WithCharacter(c *types.Character) Option {
	return func(o *options) { o.character = c }
}

// WithCharacterFile loads the character from a JSON or YAML file.
func WithCharacterFile(path string) Option {
	return func(o *options) { o.characterPath = path }
}

// WithOpenAI creates a minimal OpenAI-backed character with the given name.
// API key is read from OPENAI_API_KEY environment variable.
func WithOpenAI(name string) Option {
	return func(o *options) {
		o.providerName = types.ProviderOpenAI
		o.agentName = name
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAnthropic creates a minimal Anthropic-backed character with the given
// name. API key is read from ANTHROPIC_API_KEY environment variable.
func WithAnthropic(name string) Option {
	return func(o *options) {
		o.providerName = types.ProviderAnthropic
		o.agentName = name
		if o.apiKey == "" {
			o.apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// WithOllama creates a minimal character served by a local Ollama instance.
// No API key is required.
func WithOllama(name string) Option {
	return func(o *options) {
		o.providerName = types.ProviderOllama
		o.agentName = name
	}
}

// WithDB sets a pre-built storage adapter. Defaults to in-memory storage.
func WithDB(db database.Adapter) Option {
	return func(o *options) { o.db = db }
}

// WithSQLite stores memories in a SQLite database at the given path.
func WithSQLite(path string) Option {
	return func(o *options) { o.sqlitePath = path }
}

// WithCacheAdapter sets the cache backend. Defaults to in-process memory.
func WithCacheAdapter(a cache.Adapter) Option {
	return func(o *options) { o.cacheAdapter = a }
}

// WithPlugin registers a plugin bundle on the runtime.
func WithPlugin(p types.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p) }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAPIKey overrides the API key for provider shortcuts (WithOpenAI, etc.).
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// secretKeyFor maps a provider to its conventional secrets key, e.g.
// openai -> OPENAI_API_KEY.
func secretKeyFor(p types.ModelProvider) string {
	return strings.ToUpper(string(p)) + "_API_KEY"
}

// New creates an AgentRuntime with minimal configuration.
func New(ctx context.Context, opts ...Option) (*runtime.AgentRuntime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// Resolve the character.
	character := o.character
	if character == nil && o.characterPath != "" {
		var err error
		character, err = config.LoadCharacter(o.characterPath)
		if err != nil {
			return nil, err
		}
	}
	if character == nil {
		if o.providerName == "" {
			return nil, fmt.Errorf("a character is required: use WithCharacter, WithCharacterFile, or a provider shortcut")
		}
		character = &types.Character{
			Name:          o.agentName,
			ModelProvider: o.providerName,
		}
	}
	if o.apiKey != "" && character.Settings.Secrets == nil {
		character.Settings.Secrets = map[string]string{
			secretKeyFor(character.ModelProvider): o.apiKey,
		}
	}

	// Resolve storage.
	db := o.db
	if db == nil && o.sqlitePath != "" {
		store, err := sqlitedb.Open(o.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("migrate sqlite storage: %w", err)
		}
		db = store
	}
	if db == nil {
		db = memdb.New()
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return runtime.New(ctx, runtime.Options{
		Character:    character,
		DB:           db,
		CacheAdapter: o.cacheAdapter,
		Plugins:      o.plugins,
		Logger:       o.logger,
	})
}
