package wire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/ag/provider"
)

func TestPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := Post(context.Background(), srv.Client(), "test", srv.URL, map[string]string{"X-Test": "yes"}, []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestPost_protocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := Post(context.Background(), srv.Client(), "test", srv.URL, nil, []byte(`{}`))
	require.Error(t, err)

	var perr *provider.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Contains(t, perr.Body, "nope")
}

func TestPost_timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Post(ctx, srv.Client(), "test", srv.URL, nil, []byte(`{}`))
	require.Error(t, err)

	var terr *provider.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScanner(t *testing.T) {
	stream := strings.Join([]string{
		"event: message_start",
		`data: {"type":"message_start"}`,
		"",
		"event: content_block_delta",
		`data: {"type":"content_block_delta","delta":"hi"}`,
		"",
	}, "\n")

	sc := NewScanner("test", strings.NewReader(stream))

	require.True(t, sc.Next())
	assert.JSONEq(t, `{"type":"message_start"}`, string(sc.Data()))

	require.True(t, sc.Next())
	assert.JSONEq(t, `{"type":"content_block_delta","delta":"hi"}`, string(sc.Data()))

	assert.False(t, sc.Next())
	assert.NoError(t, sc.Err())
}

func TestScanner_rejectsGarbageLine(t *testing.T) {
	sc := NewScanner("test", strings.NewReader("not a data line\n"))

	assert.False(t, sc.Next())
	require.Error(t, sc.Err())

	var serr *provider.ResponseShapeError
	assert.ErrorAs(t, sc.Err(), &serr)
}
