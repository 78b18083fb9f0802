package anthropic

import (
	"fmt"
	"net/http"
	"os"
	"slices"

	"github.com/fogfish/opts"
	"github.com/rs/zerolog"

	"github.com/modelrelay/ag/provider"
)

const (
	providerID    = "anthropic"
	generationURL = "https://api.anthropic.com/v1/messages"
	apiKeyEnv     = "ANTHROPIC_API_KEY"
	apiVersion    = "2023-06-01"
)

var modelIDs = []string{
	"claude-haiku-4-5",
	"claude-sonnet-4-5",
	"claude-opus-4-1",
}

// Model is one Anthropic model spoken to over the Messages API.
type Model struct {
	ModelID string
	APIKey  string
	BaseURL string

	// ThinkingBudget is the extended-thinking token budget; zero disables
	// thinking.
	ThinkingBudget int

	MaxOutputTokens int
	HTTPClient      *http.Client
	Log             zerolog.Logger
}

// Option configures a Model at construction.
type Option = opts.Option[Model]

var (
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey = opts.ForName[Model, string]("APIKey")
	// BaseURL overrides the generation endpoint.
	BaseURL = opts.ForName[Model, string]("BaseURL")
	// ThinkingBudget enables extended thinking with the given token budget.
	ThinkingBudget = opts.ForName[Model, int]("ThinkingBudget")
	// MaxOutputTokens caps response size for calls that do not set their own.
	MaxOutputTokens = opts.ForName[Model, int]("MaxOutputTokens")
	// HTTPClient overrides the HTTP client.
	HTTPClient = opts.ForName[Model, *http.Client]("HTTPClient")
	// Logger sets the logger.
	Logger = opts.ForName[Model, zerolog.Logger]("Log")
)

// New builds a Model for the given model id. The id must be one this
// adapter knows how to price and talk to.
func New(modelID string, options ...Option) (*Model, error) {
	m := &Model{
		ModelID:         modelID,
		BaseURL:         generationURL,
		MaxOutputTokens: provider.DefaultMaxOutputTokens,
		HTTPClient:      http.DefaultClient,
		Log:             zerolog.Nop(),
	}
	if err := opts.Apply(m, options); err != nil {
		return nil, err
	}

	if !slices.Contains(modelIDs, modelID) {
		return nil, fmt.Errorf("anthropic: model id %q, expected one of %v", modelID, modelIDs)
	}
	if !provider.KnownModel(modelID) {
		return nil, &provider.CostLookupError{ModelID: modelID}
	}
	if m.ThinkingBudget < 0 {
		return nil, fmt.Errorf("anthropic: thinking budget %d, expected >= 0", m.ThinkingBudget)
	}
	if m.MaxOutputTokens < 1 {
		return nil, fmt.Errorf("anthropic: max output tokens %d, expected >= 1", m.MaxOutputTokens)
	}
	if m.APIKey == "" {
		m.APIKey = os.Getenv(apiKeyEnv)
	}
	if m.APIKey == "" {
		return nil, fmt.Errorf("anthropic: either pass APIKey or set %s in env", apiKeyEnv)
	}
	return m, nil
}

// ID returns the model id this instance was built with.
func (m *Model) ID() string { return m.ModelID }

func (m *Model) headers() map[string]string {
	return map[string]string{
		"content-type":      "application/json",
		"x-api-key":         m.APIKey,
		"anthropic-version": apiVersion,
	}
}
