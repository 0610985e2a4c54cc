package types

import "fmt"

// ModelProvider identifies a text/embedding/image generation backend.
type ModelProvider string

const (
	ProviderOpenAI    ModelProvider = "openai"
	ProviderAnthropic ModelProvider = "anthropic"
	ProviderGoogle    ModelProvider = "google"
	ProviderGroq      ModelProvider = "groq"
	ProviderOllama    ModelProvider = "ollama"
	ProviderTogether  ModelProvider = "together"
	ProviderLocal     ModelProvider = "local"
)

// AllProviders enumerates every supported provider identifier.
func AllProviders() []ModelProvider {
	return []ModelProvider{
		ProviderOpenAI,
		ProviderAnthropic,
		ProviderGoogle,
		ProviderGroq,
		ProviderOllama,
		ProviderTogether,
		ProviderLocal,
	}
}

// Valid reports whether p is a supported provider identifier.
func (p ModelProvider) Valid() bool {
	for _, known := range AllProviders() {
		if p == known {
			return true
		}
	}
	return false
}

// ValidateProvider returns a fatal configuration error for unknown providers.
func ValidateProvider(p ModelProvider) error {
	if !p.Valid() {
		return &Error{
			Code:    ErrUnsupportedProvider,
			Message: fmt.Sprintf("unsupported model provider: %q", p),
		}
	}
	return nil
}

// ModelTier is the capability axis along which a provider exposes models.
type ModelTier string

const (
	TierSmall     ModelTier = "small"
	TierMedium    ModelTier = "medium"
	TierLarge     ModelTier = "large"
	TierEmbedding ModelTier = "embedding"
	TierImage     ModelTier = "image"
)

// EmbeddingDims maps each embedding backend family to its vector width.
const (
	DimOpenAI = 1536
	DimOllama = 1024
	DimLocal  = 384
)

// EmbeddingDimsFor returns the embedding dimensionality used by a provider.
func EmbeddingDimsFor(p ModelProvider) int {
	switch p {
	case ProviderOpenAI, ProviderTogether, ProviderGroq:
		return DimOpenAI
	case ProviderOllama:
		return DimOllama
	default:
		return DimLocal
	}
}
