/*
Package ag is a small runtime for LLM agents: a normalized message model, a
provider abstraction with adapters speaking the raw wire protocols, a
multi-turn tool-calling orchestrator, and pluggable session memory with
exact token and dollar accounting.

# Design Decisions

  - Normalized messages: every provider's requests and responses pass
    through one tagged-union message model, so histories written by one
    model replay against another.
  - Bounded tool loops: an invocation runs at most K tool turns plus one
    closing turn where the model must answer in text.
  - Exact accounting: token counts come from the providers, dollar costs
    from a static rate table and from the tools themselves; unknown models
    fail fast instead of going uncosted.
  - Memory is a boundary: the orchestrator commits a session's new messages
    and usage exactly once per invocation, after the loop finishes.

# Usage

	model, err := anthropic.New("claude-sonnet-4-5")
	if err != nil {
		log.Fatal(err)
	}

	agent, err := ag.New(model,
		ag.WithSystemPrompt("You are terse."),
		ag.WithTools(weatherTool),
	)
	if err != nil {
		log.Fatal(err)
	}

	result, err := agent.Run(ctx, "What's the weather in Berlin?")
*/
package ag
