package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/ag/messages"
)

func sampleHistory(t *testing.T) []messages.Message {
	t.Helper()
	tc, err := messages.NewToolCall("call_1", "get_weather", `{"city":"Berlin"}`)
	require.NoError(t, err)
	return []messages.Message{
		messages.NewContent(messages.RoleUser, "weather in berlin?"),
		messages.NewReasoning("sig", "pondering"),
		tc,
		messages.NewToolResult("call_1", "sunny"),
		messages.NewContent(messages.RoleAssistant, "it is sunny"),
	}
}

func sampleUsage() messages.Usage {
	return messages.Usage{
		InputTokens:       100,
		CachedInputTokens: 40,
		OutputTokens:      20,
		ReasoningTokens:   5,
		TokenCost:         0.01,
		ToolCost:          0.005,
	}
}

func assertHistory(t *testing.T, want, got []messages.Message) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		switch w := want[i].(type) {
		case *messages.Content:
			g, ok := got[i].(*messages.Content)
			require.True(t, ok, "message %d", i)
			assert.Equal(t, w.Role, g.Role)
			assert.Equal(t, w.Text, g.Text)
		case *messages.Reasoning:
			g, ok := got[i].(*messages.Reasoning)
			require.True(t, ok, "message %d", i)
			assert.Equal(t, w.EncryptedContent, g.EncryptedContent)
			assert.Equal(t, w.Content, g.Content)
		case *messages.ToolCall:
			g, ok := got[i].(*messages.ToolCall)
			require.True(t, ok, "message %d", i)
			assert.Equal(t, w.CallID, g.CallID)
			assert.Equal(t, w.Name, g.Name)
		case *messages.ToolResult:
			g, ok := got[i].(*messages.ToolResult)
			require.True(t, ok, "message %d", i)
			assert.Equal(t, w.CallID, g.CallID)
			assert.Equal(t, w.Result, g.Result)
		}
	}
}

func TestEphemeral_unknownSession(t *testing.T) {
	store := NewEphemeral()

	msgs, err := store.Messages("nope")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	usage, err := store.Usage("nope")
	require.NoError(t, err)
	assert.Equal(t, messages.Usage{}, usage)
}

func TestEphemeral_extendAccumulates(t *testing.T) {
	store := NewEphemeral()
	history := sampleHistory(t)

	// two increments must equal one combined extend
	require.NoError(t, store.Extend("s1", history[:2], messages.Usage{InputTokens: 10, TokenCost: 0.1}))
	require.NoError(t, store.Extend("s1", history[2:], messages.Usage{InputTokens: 5, OutputTokens: 7}))

	other := NewEphemeral()
	require.NoError(t, other.Extend("s1", history, messages.Usage{InputTokens: 15, OutputTokens: 7, TokenCost: 0.1}))

	got, err := store.Messages("s1")
	require.NoError(t, err)
	wantMsgs, err := other.Messages("s1")
	require.NoError(t, err)
	assert.Equal(t, wantMsgs, got)

	usage, err := store.Usage("s1")
	require.NoError(t, err)
	wantUsage, err := other.Usage("s1")
	require.NoError(t, err)
	assert.Equal(t, wantUsage, usage)
}

func TestEphemeral_sessionsAreIsolated(t *testing.T) {
	store := NewEphemeral()
	require.NoError(t, store.Extend("a", sampleHistory(t), sampleUsage()))

	msgs, err := store.Messages("b")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSQLite_roundTrip(t *testing.T) {
	store, err := NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()

	history := sampleHistory(t)
	require.NoError(t, store.Extend("s1", history, sampleUsage()))

	got, err := store.Messages("s1")
	require.NoError(t, err)
	assertHistory(t, history, got)

	usage, err := store.Usage("s1")
	require.NoError(t, err)
	assert.Equal(t, sampleUsage(), usage)
}

func TestSQLite_unknownSession(t *testing.T) {
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	msgs, err := store.Messages("nope")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	usage, err := store.Usage("nope")
	require.NoError(t, err)
	assert.Equal(t, messages.Usage{}, usage)
}

func TestSQLite_usageUpsertAccumulates(t *testing.T) {
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	history := sampleHistory(t)
	require.NoError(t, store.Extend("s1", history[:1], messages.Usage{InputTokens: 10, OutputTokens: 2, TokenCost: 0.5}))
	require.NoError(t, store.Extend("s1", history[1:], messages.Usage{InputTokens: 3, ReasoningTokens: 4, ToolCost: 0.25}))

	usage, err := store.Usage("s1")
	require.NoError(t, err)
	assert.EqualValues(t, 13, usage.InputTokens)
	assert.EqualValues(t, 2, usage.OutputTokens)
	assert.EqualValues(t, 4, usage.ReasoningTokens)
	assert.InDelta(t, 0.5, usage.TokenCost, 1e-9)
	assert.InDelta(t, 0.25, usage.ToolCost, 1e-9)
}

func TestSQLite_persistsAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	first, err := NewSQLite(path)
	require.NoError(t, err)
	history := sampleHistory(t)
	require.NoError(t, first.Extend("s1", history, sampleUsage()))
	require.NoError(t, first.Close())

	second, err := NewSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Messages("s1")
	require.NoError(t, err)
	assertHistory(t, history, got)

	usage, err := second.Usage("s1")
	require.NoError(t, err)
	assert.Equal(t, sampleUsage(), usage)
}

func TestSQLite_readThroughCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	writer, err := NewSQLite(path)
	require.NoError(t, err)
	history := sampleHistory(t)
	require.NoError(t, writer.Extend("s1", history, sampleUsage()))
	require.NoError(t, writer.Close())

	reader, err := NewSQLite(path)
	require.NoError(t, err)
	defer reader.Close()

	// first read populates the clone
	_, err = reader.Messages("s1")
	require.NoError(t, err)

	cached, err := reader.cache.Messages("s1")
	require.NoError(t, err)
	assertHistory(t, history, cached)

	cachedUsage, err := reader.cache.Usage("s1")
	require.NoError(t, err)
	assert.Equal(t, sampleUsage(), cachedUsage)

	// served from the clone on the second read
	again, err := reader.Messages("s1")
	require.NoError(t, err)
	assertHistory(t, history, again)
}

func TestSQLite_toolCallArgsSurviveStorage(t *testing.T) {
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	tc, err := messages.NewParsedToolCall("call_9", "search", map[string]any{"query": "weather"})
	require.NoError(t, err)
	require.NoError(t, store.Extend("s1", []messages.Message{tc}, messages.Usage{InputTokens: 1}))

	// force a DB read
	store.cache = NewEphemeral()

	got, err := store.Messages("s1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	loaded, ok := got[0].(*messages.ToolCall)
	require.True(t, ok)
	parsed, err := loaded.ParsedArgs()
	require.NoError(t, err)
	assert.Equal(t, "weather", parsed["query"])
}
