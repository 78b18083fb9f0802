package provider

import "github.com/modelrelay/ag/messages"

// rate holds a model's dollar prices per million tokens.
type rate struct {
	input       float64
	cachedInput float64
	output      float64
}

// rates is the static price table. Adapters refuse to construct for model
// ids absent from it, so every response gets an exact token cost.
var rates = map[string]rate{
	"gpt-4.1":              {input: 2.00, cachedInput: 0.500, output: 8.00},
	"gpt-5-nano":           {input: 0.05, cachedInput: 0.005, output: 0.40},
	"gpt-5-mini":           {input: 0.25, cachedInput: 0.025, output: 2.00},
	"gpt-5":                {input: 1.25, cachedInput: 0.125, output: 10.00},
	"gpt-5.1":              {input: 1.25, cachedInput: 0.125, output: 10.00},
	"claude-haiku-4-5":     {input: 1.00, cachedInput: 0.100, output: 5.00},
	"claude-sonnet-4-5":    {input: 3.00, cachedInput: 0.300, output: 15.00},
	"claude-opus-4-1":      {input: 15.00, cachedInput: 1.500, output: 75.00},
	"gemini-2.5-flash":     {input: 0.30, cachedInput: 0.030, output: 1.00},
	"gemini-2.5-pro":       {input: 1.25, cachedInput: 0.125, output: 10.00},
	"gemini-3-pro-preview": {input: 2.00, cachedInput: 0.020, output: 12.00},
}

// KnownModel reports whether the rate table prices the given model id.
func KnownModel(modelID string) bool {
	_, ok := rates[modelID]
	return ok
}

// TokenCost prices a single invocation's token counts. Cached input tokens
// are billed at the cached rate, the remaining input tokens at the full
// rate. Unknown model ids are a *CostLookupError.
func TokenCost(modelID string, usage messages.Usage) (float64, error) {
	r, ok := rates[modelID]
	if !ok {
		return 0, &CostLookupError{ModelID: modelID}
	}
	fresh := float64(usage.InputTokens-usage.CachedInputTokens) * r.input
	cached := float64(usage.CachedInputTokens) * r.cachedInput
	output := float64(usage.OutputTokens) * r.output
	return (fresh + cached + output) / 1e6, nil
}
