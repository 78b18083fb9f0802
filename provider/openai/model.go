package openai

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
	providerID    = "openai"
	generationURL = "https://api.openai.com/v1/responses"
	apiKeyEnv     = "OPENAI_API_KEY"
)

var modelIDs = []string{
	"gpt-4.1",
	"gpt-5-nano",
	"gpt-5-mini",
	"gpt-5",
	"gpt-5.1",
}

// Effort is the reasoning intensity requested from the model.
type Effort string

const (
	EffortNone   Effort = "none"
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Model is one OpenAI model spoken to over the Responses API.
type Model struct {
	ModelID         string
	APIKey          string
	BaseURL         string
	Effort          Effort
	MaxOutputTokens int
	HTTPClient      *http.Client
	Log             zerolog.Logger
}

// Option configures a Model at construction.
type Option = opts.Option[Model]

var (
	// APIKey overrides the OPENAI_API_KEY environment variable.
	APIKey = opts.ForName[Model, string]("APIKey")
	// BaseURL overrides the generation endpoint.
	BaseURL = opts.ForName[Model, string]("BaseURL")
	// ReasoningEffort sets the requested reasoning intensity.
	ReasoningEffort = opts.ForName[Model, Effort]("Effort")
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
		Effort:          EffortLow,
		MaxOutputTokens: provider.DefaultMaxOutputTokens,
		HTTPClient:      http.DefaultClient,
		Log:             zerolog.Nop(),
	}
	if err := opts.Apply(m, options); err != nil {
		return nil, err
	}

	if !slices.Contains(modelIDs, modelID) {
		return nil, fmt.Errorf("openai: model id %q, expected one of %v", modelID, modelIDs)
	}
	if !provider.KnownModel(modelID) {
		return nil, &provider.CostLookupError{ModelID: modelID}
	}
	switch m.Effort {
	case EffortNone, EffortLow, EffortMedium, EffortHigh:
	default:
		return nil, fmt.Errorf("openai: invalid reasoning effort %q", m.Effort)
	}
	if m.MaxOutputTokens < 1 {
		return nil, fmt.Errorf("openai: max output tokens %d, expected >= 1", m.MaxOutputTokens)
	}
	if m.APIKey == "" {
		m.APIKey = os.Getenv(apiKeyEnv)
	}
	if m.APIKey == "" {
		return nil, fmt.Errorf("openai: either pass APIKey or set %s in env", apiKeyEnv)
	}
	return m, nil
}

// ID returns the model id this instance was built with.
func (m *Model) ID() string { return m.ModelID }

func (m *Model) headers() map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + m.APIKey,
	}
}
