package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/internal/handler"
	"scanalytics-backend/internal/insight"
	"scanalytics-backend/internal/model"
	"scanalytics-backend/internal/service"
	"scanalytics-backend/internal/storage"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan insight.Event) []insight.Event {
	t.Helper()
	var out []insight.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("stream did not close")
			return nil
		}
	}
}

func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var req model.ChatRequestBody
		assert.NoError(t, json.Unmarshal(raw, &req))
		assert.NotEmpty(t, req.Messages)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
}

func TestClient_DecodesFrames(t *testing.T) {
	srv := sseServer(t, ""+
		"event: partial\ndata: {\"response\":\"Hi\",\"queries\":[]}\n\n"+
		"event:heartbeat\ndata:{\"timestamp\":1}\n\n"+
		"event:partial\r\ndata:{\"response\":\"Hi there\",\"queries\":[{\"name\":\"MRR\",\"description\":\"\"}]}\r\n\r\n"+
		"event:complete\ndata:{\"response\":\"Hi there\",\"queries\":[{\"name\":\"MRR\",\"description\":\"Revenue.\"}]}\n\n"+
		"data:[DONE]\n\n")
	defer srv.Close()

	events, err := New(srv.URL, srv.Client()).Stream(context.Background(), []model.ChatTurn{{Role: model.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	got := drain(t, events)

	require.Len(t, got, 3)
	assert.Equal(t, insight.EventPartial, got[0].Type)
	assert.Equal(t, "Hi", got[0].Result.Response)
	assert.Equal(t, "MRR", got[1].Result.Queries[0].Name)
	assert.Equal(t, insight.EventComplete, got[2].Type)
	assert.Equal(t, "Revenue.", got[2].Result.Queries[0].Description)
}

func TestClient_StreamFailures(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "error frame", body: "event:partial\ndata:{\"response\":\"H\",\"queries\":[]}\n\nevent:error\ndata:{\"error\":\"Internal System Error: Analytics Engine Offline.\"}\n\ndata:[DONE]\n\n"},
		{name: "done without terminal", body: "event:partial\ndata:{\"response\":\"H\",\"queries\":[]}\n\ndata:[DONE]\n\n"},
		{name: "truncated body", body: "event:partial\ndata:{\"response\":\"H\",\"queries\":[]}\n\nevent:partial\ndata:{\"resp"},
		{name: "garbled frame", body: "event:complete\ndata:{nope}\n\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := sseServer(t, tc.body)
			defer srv.Close()

			events, err := New(srv.URL, srv.Client()).Stream(context.Background(), []model.ChatTurn{{Role: model.RoleUser, Content: "hi"}})
			require.NoError(t, err)
			got := drain(t, events)

			require.NotEmpty(t, got)
			last := got[len(got)-1]
			assert.Equal(t, insight.EventError, last.Type)
			assert.True(t, errors.Is(last.Err, ErrStreamFailed), "got %v", last.Err)
			for _, ev := range got[:len(got)-1] {
				assert.False(t, ev.Terminal())
			}
		})
	}
}

func TestClient_NonSuccessStatusIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":"Internal System Error: Analytics Engine Offline."}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL+"/", srv.Client()).Stream(context.Background(), []model.ChatTurn{{Role: model.RoleUser, Content: "hi"}})
	require.Error(t, err)

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadGateway, re.StatusCode)
	assert.Equal(t, service.MaskedErrorMessage, re.Message)
}

func TestClient_CancelStopsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event:partial\ndata:{\"response\":\"H\",\"queries\":[]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := New(srv.URL, srv.Client()).Stream(ctx, []model.ChatTurn{{Role: model.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	first := <-events
	assert.Equal(t, insight.EventPartial, first.Type)

	cancel()
	for ev := range events {
		assert.NotEqual(t, insight.EventComplete, ev.Type)
	}
}

// scriptedModel replays a fixed provider output in small chunks.
type scriptedModel struct {
	output string
	err    error
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.output, nil), m.err
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	if m.err != nil {
		return nil, m.err
	}
	var chunks []*schema.Message
	for doc := m.output; doc != ""; {
		n := 5
		if len(doc) < n {
			n = len(doc)
		}
		chunks = append(chunks, schema.AssistantMessage(doc[:n], nil))
		doc = doc[n:]
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func newPipeline(t *testing.T, m einoModel.BaseChatModel) (*Session, *storage.SelectionStore) {
	t.Helper()
	svc := service.New(func(ctx context.Context) (einoModel.BaseChatModel, error) { return m, nil }, service.Options{Timeout: 5 * time.Second})
	cfg := &config.Config{}
	router := handler.NewRouter(cfg, handler.NewChatHandler(svc, time.Second), handler.NewHealthHandler("test"))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	store := storage.NewSelectionStore(storage.NewMemoryStorage())
	return NewSession(New(srv.URL, srv.Client()), store), store
}

func TestPipeline_SaaSScenario(t *testing.T) {
	output := `{"response":"Great, for a B2B SaaS project-management tool I suggest:","queries":[` +
		`{"name":"Monthly Recurring Revenue","description":"Predictable subscription revenue per month."},` +
		`{"name":"Logo Churn","description":"Share of customer accounts cancelling each month."},` +
		`{"name":"Weekly Active Projects","description":"Projects with at least one task update in the week."},` +
		`{"name":"Net Revenue Retention","description":"Revenue kept from existing customers including expansion."}]}`
	sess, store := newPipeline(t, &scriptedModel{output: output})

	states, stop := sess.Subscribe()
	defer stop()

	require.NoError(t, sess.Submit(context.Background(), "We run a B2B SaaS project-management tool"))
	sess.Wait()

	state := sess.State()
	require.True(t, state.Settled, "notice=%q err=%v", state.Notice, state.Err)
	require.NotNil(t, state.Live)
	assert.NotEmpty(t, state.Live.Response)
	assert.GreaterOrEqual(t, len(state.Live.Queries), 3)
	assert.LessOrEqual(t, len(state.Live.Queries), 5)
	for _, q := range state.Live.Queries {
		assert.NotEmpty(t, q.Name)
		assert.NotEmpty(t, q.Description)
	}
	require.Len(t, state.History, 2)
	assert.Equal(t, model.RoleUser, state.History[0].Role)
	assert.Equal(t, model.RoleAssistant, state.History[1].Role)

	latest := <-states
	assert.True(t, latest.Settled)

	require.NoError(t, sess.Commit())
	sel, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, state.Live.Queries, sel.Queries)
}

func TestPipeline_ProviderFailureIsGeneric(t *testing.T) {
	testCases := []struct {
		name  string
		model *scriptedModel
	}{
		{name: "rejected call", model: &scriptedModel{err: fmt.Errorf("401: invalid key sk-or-v1-secret")}},
		{name: "invalid output", model: &scriptedModel{output: `{"response":"ok","queries":"none"}`}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sess, store := newPipeline(t, tc.model)

			require.NoError(t, sess.Submit(context.Background(), "hi"))
			sess.Wait()

			state := sess.State()
			assert.False(t, state.InFlight)
			assert.Equal(t, FailureNotice, state.Notice)
			require.Len(t, state.History, 1, "no assistant turn on failure")
			require.Error(t, state.Err)
			assert.NotContains(t, state.Err.Error(), "sk-or")
			assert.True(t, strings.Contains(state.Err.Error(), service.MaskedErrorMessage), "got %v", state.Err)

			assert.True(t, errors.Is(sess.Commit(), ErrNotReady))
			_, err := store.Load()
			assert.True(t, errors.Is(err, storage.ErrSelectionNotFound))
		})
	}
}
