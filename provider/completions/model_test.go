package completions

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/modelrelay/ag/messages"
	"github.com/modelrelay/ag/provider"
	"github.com/modelrelay/ag/tool"
)

const responseBody = `{
	"model": "gemini-2.5-flash",
	"choices": [{
		"message": {
			"role": "assistant",
			"content": "hi there",
			"tool_calls": [{"type": "function", "id": "call_1", "function": {"name": "get_weather", "arguments": "{\"city\":\"Berlin\"}"}}]
		}
	}],
	"usage": {"prompt_tokens": 100, "completion_tokens": 20}
}`

type weatherArgs struct {
	City string `json:"city"`
}

func newTestModel(t *testing.T, srv *httptest.Server, options ...Option) *Model {
	t.Helper()
	options = append([]Option{APIKey("test-key"), BaseURL(srv.URL + "/"), HTTPClient(srv.Client())}, options...)
	m, err := New("gemini-2.5-flash", options...)
	require.NoError(t, err)
	return m
}

func TestNew_validation(t *testing.T) {
	_, err := New("some-local-model", APIKey("k"))
	require.Error(t, err)

	var cerr *provider.CostLookupError
	require.ErrorAs(t, err, &cerr)

	_, err = New("gemini-2.5-flash", APIKey("k"), ReasoningEffort("none"))
	require.Error(t, err)

	_, err = New("gemini-2.5-flash", APIKey("k"), MaxOutputTokens(0))
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	var sent []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		sent, _ = io.ReadAll(r.Body)
		w.Write([]byte(responseBody))
	}))
	defer srv.Close()

	m := newTestModel(t, srv, ReasoningEffort(EffortMedium))

	weather := tool.Must[weatherArgs](func(ctx context.Context, args weatherArgs) (string, error) {
		return "", nil
	}, tool.Name("get_weather"), tool.Description("Look up weather."))

	tc, err := messages.NewToolCall("call_0", "get_weather", `{"city":"Oslo"}`)
	require.NoError(t, err)

	resp, err := m.Generate(context.Background(), provider.Params{
		Messages: []messages.Message{
			messages.NewContent(messages.RoleSystem, "be brief"),
			messages.NewContent(messages.RoleUser, "weather?"),
			tc,
			messages.NewToolResult("call_0", "rainy"),
		},
		Tools:      []tool.Definition{weather},
		ToolChoice: provider.ToolChoiceAuto,
	})
	require.NoError(t, err)

	// request payload
	req := gjson.ParseBytes(sent)
	assert.Equal(t, "gemini-2.5-flash", req.Get("model").String())
	assert.Equal(t, "medium", req.Get("reasoning_effort").String())
	assert.EqualValues(t, provider.DefaultMaxOutputTokens, req.Get("max_completion_tokens").Int())
	assert.Equal(t, "system", req.Get("messages.0.role").String())
	assert.Equal(t, "assistant", req.Get("messages.2.role").String())
	assert.Equal(t, "function", req.Get("messages.2.tool_calls.0.type").String())
	assert.Equal(t, "get_weather", req.Get("messages.2.tool_calls.0.function.name").String())
	assert.Equal(t, "tool", req.Get("messages.3.role").String())
	assert.Equal(t, "call_0", req.Get("messages.3.tool_call_id").String())
	assert.Equal(t, "rainy", req.Get("messages.3.content").String())
	assert.Equal(t, "function", req.Get("tools.0.type").String())
	assert.True(t, req.Get("tools.0.function.strict").Bool())
	assert.Equal(t, "object", req.Get("tools.0.function.parameters.type").String())
	assert.Equal(t, "auto", req.Get("tool_choice").String())

	// normalized response
	assert.Equal(t, "gemini-2.5-flash", resp.ModelID)
	require.NotNil(t, resp.Content)
	assert.Equal(t, "hi there", resp.Content.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].CallID)

	assert.EqualValues(t, 100, resp.Usage.InputTokens)
	assert.EqualValues(t, 20, resp.Usage.OutputTokens)
	assert.EqualValues(t, 0, resp.Usage.CachedInputTokens)
	assert.InDelta(t, (100*0.30+20*1.00)/1e6, resp.Usage.TokenCost, 1e-12)
}

func TestGenerate_rejectsReasoningReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer srv.Close()

	m := newTestModel(t, srv)
	_, err := m.Generate(context.Background(), provider.Params{
		Messages: []messages.Message{
			messages.NewContent(messages.RoleUser, "hi"),
			messages.NewReasoning("blob", ""),
		},
	})
	require.Error(t, err)

	var ferr *provider.UnsupportedFeatureError
	assert.ErrorAs(t, err, &ferr)
}

func TestGenerate_rejectsStructuredOutput(t *testing.T) {
	m, err := New("gemini-2.5-flash", APIKey("k"))
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), provider.Params{
		Messages:         []messages.Message{messages.NewContent(messages.RoleUser, "hi")},
		StructuredOutput: &provider.StructuredOutput{Name: "x", Schema: []byte(`{}`)},
	})
	require.Error(t, err)

	var ferr *provider.UnsupportedFeatureError
	assert.ErrorAs(t, err, &ferr)
}

func TestStream_unsupported(t *testing.T) {
	m, err := New("gemini-2.5-flash", APIKey("k"))
	require.NoError(t, err)

	_, err = m.Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.NewContent(messages.RoleUser, "hi")},
	})
	require.Error(t, err)

	var ferr *provider.UnsupportedFeatureError
	assert.ErrorAs(t, err, &ferr)
}

func TestGenerate_shapeErrors(t *testing.T) {
	bodies := map[string]string{
		"missing usage": `{"model": "gemini-2.5-flash", "choices": []}`,
		"two choices": `{
			"model": "gemini-2.5-flash",
			"choices": [{"message": {"content": "a"}}, {"message": {"content": "b"}}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1}
		}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			m := newTestModel(t, srv)
			_, err := m.Generate(context.Background(), provider.Params{
				Messages: []messages.Message{messages.NewContent(messages.RoleUser, "hi")},
			})
			require.Error(t, err)

			var serr *provider.ResponseShapeError
			assert.ErrorAs(t, err, &serr)
		})
	}
}
