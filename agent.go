package ag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fogfish/opts"
	"github.com/rs/zerolog"

	"github.com/modelrelay/ag/memory"
	"github.com/modelrelay/ag/messages"
	"github.com/modelrelay/ag/pkg/uuidx"
	"github.com/modelrelay/ag/provider"
	"github.com/modelrelay/ag/tool"
)

// Agent binds a model to its tools, an optional session store and an
// optional system prompt. Agents are safe for concurrent invocations.
type Agent struct {
	Model        provider.Model
	Memory       memory.Store
	Tools        []tool.Definition
	SystemPrompt string
	Log          zerolog.Logger

	byName       map[string]tool.Definition
	systemPrompt *messages.Content
}

// Option configures an Agent at construction.
type Option = opts.Option[Agent]

var (
	// WithMemory attaches a session store. Without one every invocation is
	// a fresh single-shot conversation.
	WithMemory = opts.ForName[Agent, memory.Store]("Memory")
	// WithSystemPrompt prepends a system message to every invocation.
	WithSystemPrompt = opts.ForName[Agent, string]("SystemPrompt")
	// WithLogger sets the logger.
	WithLogger = opts.ForName[Agent, zerolog.Logger]("Log")
)

// WithTools registers the tools the model may call.
func WithTools(tools ...tool.Definition) Option {
	return opts.Type[Agent](func(a *Agent) error {
		a.Tools = append(a.Tools, tools...)
		return nil
	})
}

// New builds an Agent around a model.
func New(model provider.Model, options ...Option) (*Agent, error) {
	a := &Agent{
		Model: model,
		Log:   zerolog.Nop(),
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}

	a.byName = make(map[string]tool.Definition, len(a.Tools))
	for _, def := range a.Tools {
		if _, dup := a.byName[def.Name]; dup {
			return nil, fmt.Errorf("ag: duplicate tool name %q", def.Name)
		}
		a.byName[def.Name] = def
	}
	if a.SystemPrompt != "" {
		a.systemPrompt = messages.NewContent(messages.RoleSystem, a.SystemPrompt)
	}
	return a, nil
}

// RunResult is the outcome of one agent invocation.
type RunResult struct {
	// SessionID identifies the conversation, generated when the caller did
	// not supply one.
	SessionID string

	// ModelID of the model that produced the result.
	ModelID string

	// Usage accumulated across every turn of the invocation, tool costs
	// included.
	Usage messages.Usage

	// Content is the invocation's text: each turn's response text joined by
	// blank lines, with optional tool-call markers.
	Content string
}

// RunConfig holds the per-invocation knobs. Callers set them through run
// options.
type RunConfig struct {
	SessionID         string
	Timeout           time.Duration
	MaxToolTurns      int
	SafeTools         bool
	ToolMarkers       bool
	ParallelToolCalls bool
	Model             provider.Model
}

// RunOption configures a single invocation.
type RunOption = opts.Option[RunConfig]

var (
	// WithSession continues the given session instead of starting a new one.
	WithSession = opts.ForName[RunConfig, string]("SessionID")
	// WithTimeout bounds each model call of the invocation.
	WithTimeout = opts.ForName[RunConfig, time.Duration]("Timeout")
	// WithMaxToolTurns caps the number of tool turns. The model always gets
	// one extra closing turn where tool use is disabled.
	WithMaxToolTurns = opts.ForName[RunConfig, int]("MaxToolTurns")
	// WithSafeTools toggles whether tool failures come back to the model as
	// error strings instead of aborting the invocation.
	WithSafeTools = opts.ForName[RunConfig, bool]("SafeTools")
	// WithToolMarkers toggles the [Tool call: name] markers in the result
	// content.
	WithToolMarkers = opts.ForName[RunConfig, bool]("ToolMarkers")
	// WithParallelToolCalls lets the model issue several tool calls in one
	// turn.
	WithParallelToolCalls = opts.ForName[RunConfig, bool]("ParallelToolCalls")
	// WithModel overrides the agent's model for this invocation.
	WithModel = opts.ForName[RunConfig, provider.Model]("Model")
)

func (a *Agent) runConfig(options []RunOption) (RunConfig, error) {
	cfg := RunConfig{
		SessionID:    uuidx.NewString(),
		Timeout:      60 * time.Second,
		MaxToolTurns: 3,
		SafeTools:    true,
		ToolMarkers:  true,
		Model:        a.Model,
	}
	if err := opts.Apply(&cfg, options); err != nil {
		return RunConfig{}, err
	}
	if cfg.MaxToolTurns < 0 {
		return RunConfig{}, fmt.Errorf("ag: max tool turns %d, expected >= 0", cfg.MaxToolTurns)
	}
	return cfg, nil
}

// Run performs a blocking invocation: up to MaxToolTurns tool turns plus a
// closing turn with tool use disabled, ending early on the first response
// without tool calls.
func (a *Agent) Run(ctx context.Context, input string, options ...RunOption) (*RunResult, error) {
	return a.invoke(ctx, input, nil, options)
}

// Stream performs a streaming invocation. Text deltas and completed tool
// calls of every turn are forwarded to sink as they arrive; the returned
// result is the same aggregate Run would produce.
func (a *Agent) Stream(ctx context.Context, input string, sink func(provider.StreamEvent), options ...RunOption) (*RunResult, error) {
	if sink == nil {
		return nil, fmt.Errorf("ag: stream requires a sink")
	}
	return a.invoke(ctx, input, sink, options)
}

func (a *Agent) invoke(ctx context.Context, input string, sink func(provider.StreamEvent), options []RunOption) (*RunResult, error) {
	cfg, err := a.runConfig(options)
	if err != nil {
		return nil, err
	}
	model := cfg.Model

	prefix := make([]messages.Message, 0, 8)
	if a.systemPrompt != nil {
		prefix = append(prefix, a.systemPrompt)
	}
	if a.Memory != nil {
		stored, err := a.Memory.Messages(cfg.SessionID)
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, stored...)
	}

	buffer := []messages.Message{messages.NewContent(messages.RoleUser, input)}

	var usage messages.Usage
	var transcript []string

	for turn := 0; turn <= cfg.MaxToolTurns; turn++ {
		choice := provider.ToolChoiceAuto
		if turn == cfg.MaxToolTurns {
			// closing turn, the model must answer in text
			choice = provider.ToolChoiceNone
		}

		outgoing := make([]messages.Message, 0, len(prefix)+len(buffer))
		outgoing = append(outgoing, prefix...)
		outgoing = append(outgoing, buffer...)

		params := provider.Params{
			Messages:          outgoing,
			Tools:             a.Tools,
			ToolChoice:        choice,
			ParallelToolCalls: cfg.ParallelToolCalls,
			Timeout:           cfg.Timeout,
		}

		a.Log.Debug().
			Str("session_id", cfg.SessionID).
			Int("turn", turn).
			Str("tool_choice", string(choice)).
			Msg("model turn")

		resp, err := a.turn(ctx, model, params, sink)
		if err != nil {
			return nil, err
		}

		usage = usage.Add(resp.Usage)
		buffer = append(buffer, resp.Messages...)
		if resp.Content != nil {
			transcript = append(transcript, resp.Content.Text)
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		if cfg.ToolMarkers {
			for _, tc := range resp.ToolCalls {
				transcript = append(transcript, "[Tool call: "+tc.Name+"]")
			}
		}

		results, toolCost, err := a.invokeTools(ctx, resp.ToolCalls, cfg.SafeTools)
		if err != nil {
			return nil, err
		}
		usage.ToolCost += toolCost
		for _, tr := range results {
			buffer = append(buffer, tr)
		}
	}

	if a.Memory != nil {
		if err := a.Memory.Extend(cfg.SessionID, buffer, usage); err != nil {
			return nil, err
		}
	}

	return &RunResult{
		SessionID: cfg.SessionID,
		ModelID:   model.ID(),
		Usage:     usage,
		Content:   strings.Join(transcript, "\n\n"),
	}, nil
}

// turn performs one model call, blocking or streaming depending on whether
// a sink is attached.
func (a *Agent) turn(ctx context.Context, model provider.Model, params provider.Params, sink func(provider.StreamEvent)) (*provider.Response, error) {
	if sink == nil {
		return model.Generate(ctx, params)
	}

	events, err := model.Stream(ctx, params)
	if err != nil {
		return nil, err
	}
	for event := range events {
		switch ev := event.(type) {
		case provider.Delta, provider.ToolCallDone:
			sink(ev)
		case provider.Final:
			return ev.Response, nil
		case provider.Fail:
			return nil, ev.Err
		}
	}
	return nil, fmt.Errorf("ag: stream closed without a terminal event")
}

// invokeTools runs every tool call of a turn concurrently and returns the
// results in request order. An unregistered tool name aborts before any
// call runs. In safe mode individual failures and panics become error-text
// results the model can react to; otherwise the first failure aborts the
// invocation.
func (a *Agent) invokeTools(ctx context.Context, calls []*messages.ToolCall, safe bool) ([]*messages.ToolResult, float64, error) {
	defs := make([]tool.Definition, len(calls))
	for i, tc := range calls {
		def, ok := a.byName[tc.Name]
		if !ok {
			return nil, 0, fmt.Errorf("ag: tool call for unregistered tool %q", tc.Name)
		}
		defs[i] = def
	}

	results := make([]*messages.ToolResult, len(calls))
	costs := make([]float64, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()

			output, cost, err := a.invokeTool(ctx, defs[i], tc)
			if err != nil {
				if !safe {
					errs[i] = fmt.Errorf("ag: tool %q call failed: %w", tc.Name, err)
					return
				}
				output = fmt.Sprintf("[Tool '%s' call failed: %T %v]", tc.Name, err, err)
				cost = 0
			}
			results[i] = messages.NewToolResult(tc.CallID, output)
			costs[i] = cost
		}()
	}
	wg.Wait()

	var total float64
	for i := range calls {
		if errs[i] != nil {
			return nil, 0, errs[i]
		}
		total += costs[i]
	}
	return results, total, nil
}

func (a *Agent) invokeTool(ctx context.Context, def tool.Definition, tc *messages.ToolCall) (output string, cost float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	raw, err := tc.RawArgs()
	if err != nil {
		return "", 0, err
	}
	return def.Invoke(ctx, []byte(raw))
}
