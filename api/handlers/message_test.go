package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/llmcouncil/internal/council"
	"github.com/BaSui01/llmcouncil/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeCouncil struct {
	result     types.CouncilResult
	title      string
	titleCalls atomic.Int32
	onRun      func(ctx context.Context)
}

func newFakeCouncil() *fakeCouncil {
	return &fakeCouncil{
		title: "Capital of France",
		result: types.CouncilResult{
			Stage1: []types.StageOneResult{{Model: "m1", Response: "Paris"}},
			Stage2: []types.StageTwoResult{{Model: "m1", Ranking: "FINAL RANKING:\n1. Response A", ParsedRanking: []string{"Response A"}}},
			Stage3: types.StageThreeResult{Model: "chair", Response: "Paris is the capital."},
			Metadata: types.Metadata{
				LabelToModel:      map[string]string{"Response A": "m1"},
				AggregateRankings: []types.AggregateRanking{{Model: "m1", AverageRank: 1, RankingsCount: 1}},
			},
		},
	}
}

func (f *fakeCouncil) Run(ctx context.Context, _ string, emit council.EmitFunc) types.CouncilResult {
	if emit == nil {
		emit = func(council.Event) {}
	}
	emit(council.Event{Type: council.EventStage1Start})
	emit(council.Event{Type: council.EventStage1Complete, Data: f.result.Stage1})
	emit(council.Event{Type: council.EventStage2Start})
	md := f.result.Metadata
	emit(council.Event{Type: council.EventStage2Complete, Data: f.result.Stage2, Metadata: &md})
	emit(council.Event{Type: council.EventStage3Start})
	if f.onRun != nil {
		f.onRun(ctx)
	}
	emit(council.Event{Type: council.EventStage3Complete, Data: f.result.Stage3})
	return f.result
}

func (f *fakeCouncil) GenerateTitle(context.Context, string) string {
	f.titleCalls.Add(1)
	return f.title
}

type runRecord struct{ mode, status string }

type fakeRecorder struct {
	mu   sync.Mutex
	runs []runRecord
}

func (r *fakeRecorder) RecordCouncilRun(mode, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, runRecord{mode, status})
}

func (r *fakeRecorder) all() []runRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runRecord(nil), r.runs...)
}

// failingStore 让助手消息写入失败
type failingStore struct {
	ConversationStore
}

func (failingStore) AddAssistantMessage(context.Context, string, []types.StageOneResult, []types.StageTwoResult, types.StageThreeResult) error {
	return errors.New("disk full")
}

func newMessageMux(h *MessageHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/message", h.HandleSend)
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", h.HandleStream)
	mux.HandleFunc("GET /api/conversations/{id}/message/ws", h.HandleWebSocket)
	return mux
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// readSSE 解析 `data: {json}\n\n` 帧
func readSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []map[string]any) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i], _ = ev["type"].(string)
	}
	return out
}

// =============================================================================
// 🧪 同步发送
// =============================================================================

func TestMessageHandler_SendFirstMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	fc := newFakeCouncil()
	rec := &fakeRecorder{}
	mux := newMessageMux(NewMessageHandler(s, fc, zap.NewNop(), WithRunRecorder(rec)))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, postJSON("/api/conversations/c1/message", `{"content":"What is the capital of France?"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.CouncilResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, fc.result, resp)

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Capital of France", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, types.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "What is the capital of France?", conv.Messages[0].Content)
	assert.Equal(t, types.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Paris is the capital.", conv.Messages[1].Stage3.Response)

	assert.Equal(t, []runRecord{{"sync", "ok"}}, rec.all())
}

func TestMessageHandler_SecondMessageKeepsTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, s.AddUserMessage(ctx, "c1", "earlier"))
	require.NoError(t, s.UpdateTitle(ctx, "c1", "Kept"))

	fc := newFakeCouncil()
	mux := newMessageMux(NewMessageHandler(s, fc, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, postJSON("/api/conversations/c1/message", `{"content":"again"}`))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Zero(t, fc.titleCalls.Load())
	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Kept", conv.Title)
	assert.Len(t, conv.Messages, 3)
}

func TestMessageHandler_SendValidation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)
	mux := newMessageMux(NewMessageHandler(s, newFakeCouncil(), nil))

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"missing conversation", "/api/conversations/nope/message", `{"content":"hi"}`, http.StatusNotFound},
		{"empty content", "/api/conversations/c1/message", `{"content":""}`, http.StatusBadRequest},
		{"blank content", "/api/conversations/c1/message", `{"content":"   "}`, http.StatusBadRequest},
		{"bad json", "/api/conversations/c1/message", `{"content":`, http.StatusBadRequest},
		{"stream missing conversation", "/api/conversations/nope/message/stream", `{"content":"hi"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, postJSON(tt.path, tt.body))
			assert.Equal(t, tt.wantStatus, w.Code)
			decodeError(t, w)
		})
	}

	conv, err := s.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages, "rejected requests must not store anything")
}

func TestMessageHandler_SendClientGone(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := newFakeCouncil()
	fc.onRun = func(context.Context) { cancel() }
	rec := &fakeRecorder{}
	mux := newMessageMux(NewMessageHandler(s, fc, nil, WithRunRecorder(rec)))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, postJSON("/api/conversations/c1/message", `{"content":"hi"}`).WithContext(ctx))

	conv, err := s.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1, "assistant message is not stored after the client leaves")
	assert.Equal(t, []runRecord{{"sync", "canceled"}}, rec.all())
}

// =============================================================================
// 🧪 SSE
// =============================================================================

func TestMessageHandler_StreamEventOrder(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)
	rec := &fakeRecorder{}
	mux := newMessageMux(NewMessageHandler(s, newFakeCouncil(), zap.NewNop(), WithRunRecorder(rec)))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, postJSON("/api/conversations/c1/message/stream", `{"content":"hi"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	events := readSSE(t, w.Body.String())
	assert.Equal(t, []string{
		"stage1_start", "stage1_complete",
		"stage2_start", "stage2_complete",
		"stage3_start", "stage3_complete",
		"title_complete", "complete",
	}, eventTypes(events))

	assert.NotNil(t, events[3]["metadata"], "stage2_complete carries metadata")
	assert.Equal(t, map[string]any{"title": "Capital of France"}, events[6]["data"])
	assert.Equal(t, []runRecord{{"stream", "ok"}}, rec.all())
}

func TestMessageHandler_StreamStorageFailure(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)
	mux := newMessageMux(NewMessageHandler(failingStore{s}, newFakeCouncil(), nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, postJSON("/api/conversations/c1/message/stream", `{"content":"hi"}`))

	events := readSSE(t, w.Body.String())
	got := eventTypes(events)
	require.NotEmpty(t, got)
	assert.Equal(t, "error", got[len(got)-1])
	assert.NotContains(t, got, "complete")
	assert.Equal(t, "disk full", events[len(events)-1]["message"])
}

func TestSSESink_FrameFormat(t *testing.T) {
	w := httptest.NewRecorder()
	sink := &sseSink{w: w, flusher: w}

	require.NoError(t, sink.Send(context.Background(), council.Event{Type: council.EventComplete}))
	require.NoError(t, sink.Send(context.Background(), council.Event{Type: council.EventError, Message: "boom"}))

	assert.Equal(t, "data: {\"type\":\"complete\"}\n\ndata: {\"type\":\"error\",\"message\":\"boom\"}\n\n", w.Body.String())
	assert.True(t, w.Flushed)
}

type brokenSink struct{ calls int }

func (b *brokenSink) Send(context.Context, council.Event) error {
	b.calls++
	return errors.New("broken pipe")
}

func TestRelay_StopsAfterFirstError(t *testing.T) {
	sink := &brokenSink{}
	rl := &relay{ctx: context.Background(), sink: sink}

	rl.emit(council.Event{Type: council.EventStage1Start})
	rl.emit(council.Event{Type: council.EventStage1Complete})

	assert.Equal(t, 1, sink.calls)
	assert.EqualError(t, rl.err, "broken pipe")
}
