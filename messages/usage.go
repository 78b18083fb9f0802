package messages

// Usage is the cumulative accounting for one or more model invocations.
// Token counts come straight from the provider response; the dollar figures
// are computed from the static per-model rate table (token cost) and from
// tool callables that report an incremental cost (tool cost).
type Usage struct {
	InputTokens       int64   `json:"input_tokens"`
	CachedInputTokens int64   `json:"input_tokens_cached"`
	OutputTokens      int64   `json:"output_tokens"`
	ReasoningTokens   int64   `json:"reasoning_tokens"`
	TokenCost         float64 `json:"token_cost"`
	ToolCost          float64 `json:"tool_cost"`
}

// Add returns the field-wise sum of two usage records. Addition is
// associative and commutative, so per-turn records can be folded in any
// order and still produce the same session total.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:       u.InputTokens + other.InputTokens,
		CachedInputTokens: u.CachedInputTokens + other.CachedInputTokens,
		OutputTokens:      u.OutputTokens + other.OutputTokens,
		ReasoningTokens:   u.ReasoningTokens + other.ReasoningTokens,
		TokenCost:         u.TokenCost + other.TokenCost,
		ToolCost:          u.ToolCost + other.ToolCost,
	}
}

// TotalCost is the combined dollar cost of tokens and paid tool calls.
func (u Usage) TotalCost() float64 {
	return u.TokenCost + u.ToolCost
}
