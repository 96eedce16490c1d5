package embed

import (
	"log/slog"
	"strings"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings. Always available.
	ProviderStatic ProviderType = "static"

	// ProviderNone disables embeddings and with them the vector index.
	ProviderNone ProviderType = "none"
)

// NewEmbedder creates the embedder for provider, wrapped in a cache unless
// cacheSize is negative. ProviderNone returns nil, nil.
func NewEmbedder(provider string, cacheSize int) (Embedder, error) {
	var embedder Embedder
	switch ProviderType(strings.ToLower(provider)) {
	case ProviderNone:
		return nil, nil
	case ProviderStatic, "":
		embedder = NewStaticEmbedder()
	default:
		return nil, amerrors.ConfigError("unknown embedder: "+provider, nil).
			WithSuggestion("valid options: static, none")
	}

	slog.Debug("embedder_created",
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.Int("cache_size", cacheSize))

	if cacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cacheSize), nil
}
