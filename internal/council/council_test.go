package council

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/llmcouncil/llm"
	"github.com/BaSui01/llmcouncil/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRouter answers per model. Prompts are classified by their wording so a
// single fake can serve all stages.
type fakeRouter struct {
	mu       sync.Mutex
	answers  map[string]string
	rankings map[string]string
	final    string
	title    string
	failing  map[string]bool
	calls    []*llm.ChatRequest
}

func (f *fakeRouter) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.failing[req.Model] {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: req.Model + " is down"}
	}

	prompt := req.Messages[0].Content
	var content string
	switch {
	case strings.HasPrefix(prompt, "You are the Chairman"):
		content = f.final
	case strings.HasPrefix(prompt, "Generate a very short title"):
		content = f.title
	case strings.HasPrefix(prompt, "You are evaluating"):
		content = f.rankings[req.Model]
	default:
		content = f.answers[req.Model]
	}
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}}}, nil
}

func testConfig() Config {
	return Config{
		Models:        []string{"a/one", "b/two", "c/three"},
		ChairmanModel: "b/two",
		TitleModel:    "t/title",
		TitleTimeout:  time.Second,
	}
}

func newTestCouncil(t *testing.T, f *fakeRouter) *Council {
	t.Helper()
	c, err := New(testConfig(), f, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

type recordingObserver struct {
	mu     sync.Mutex
	stages map[string][2]int
}

func (r *recordingObserver) ObserveStage(stage string, d time.Duration, ok, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = map[string][2]int{}
	}
	r.stages[stage] = [2]int{ok, failed}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Models = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ChairmanModel = " "
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Models = make([]string, 27)
	for i := range cfg.Models {
		cfg.Models[i] = "m"
	}
	assert.ErrorContains(t, cfg.Validate(), "at most 26")
}

func TestNew_RequiresCompleter(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)
}

func TestCollectResponses_SkipsFailuresAndKeepsOrder(t *testing.T) {
	f := &fakeRouter{
		answers: map[string]string{"a/one": "A says", "b/two": "", "c/three": "C says"},
		failing: map[string]bool{},
	}
	obs := &recordingObserver{}
	c, err := New(testConfig(), f, obs, zap.NewNop())
	require.NoError(t, err)

	got := c.CollectResponses(context.Background(), "What is Go?")
	assert.Equal(t, []types.StageOneResult{
		{Model: "a/one", Response: "A says"},
		{Model: "c/three", Response: "C says"},
	}, got)
	assert.Equal(t, [2]int{2, 1}, obs.stages["stage1"])
	assert.Len(t, f.calls, 3)
	for _, call := range f.calls {
		assert.Equal(t, "What is Go?", call.Messages[0].Content)
		assert.Equal(t, llm.RoleUser, call.Messages[0].Role)
	}
}

func TestCollectRankings_AnonymizesAndParses(t *testing.T) {
	f := &fakeRouter{
		rankings: map[string]string{
			"a/one":   "FINAL RANKING:\n1. Response B\n2. Response A",
			"b/two":   "FINAL RANKING:\n1. Response B\n2. Response A",
			"c/three": "",
		},
	}
	c := newTestCouncil(t, f)

	stage1 := []types.StageOneResult{{Model: "a/one", Response: "first"}, {Model: "c/three", Response: "second"}}
	stage2, labelToModel := c.CollectRankings(context.Background(), "q", stage1)

	assert.Equal(t, map[string]string{"Response A": "a/one", "Response B": "c/three"}, labelToModel)
	require.Len(t, stage2, 2)
	assert.Equal(t, []string{"Response B", "Response A"}, stage2[0].ParsedRanking)

	prompt := f.calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Response A:\nfirst")
	assert.Contains(t, prompt, "Response B:\nsecond")
	assert.NotContains(t, prompt, "a/one")
}

func TestSynthesizeFinal(t *testing.T) {
	f := &fakeRouter{final: "The council agrees."}
	c := newTestCouncil(t, f)

	got := c.SynthesizeFinal(context.Background(), "q",
		[]types.StageOneResult{{Model: "a/one", Response: "ans"}},
		[]types.StageTwoResult{{Model: "a/one", Ranking: "rank text"}})
	assert.Equal(t, types.StageThreeResult{Model: "b/two", Response: "The council agrees."}, got)

	prompt := f.calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Original Question: q")
	assert.Contains(t, prompt, "Model: a/one\nResponse: ans")
	assert.Contains(t, prompt, "Model: a/one\nRanking: rank text")
}

func TestSynthesizeFinal_ChairmanFailure(t *testing.T) {
	f := &fakeRouter{failing: map[string]bool{"b/two": true}}
	c := newTestCouncil(t, f)

	got := c.SynthesizeFinal(context.Background(), "q", nil, nil)
	assert.Equal(t, "b/two", got.Model)
	assert.Equal(t, SynthesisFailedMessage, got.Response)
}

func TestGenerateTitle(t *testing.T) {
	f := &fakeRouter{title: "  \"Go Concurrency Explained\"\n"}
	c := newTestCouncil(t, f)

	assert.Equal(t, "Go Concurrency Explained", c.GenerateTitle(context.Background(), "explain goroutines"))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "t/title", f.calls[0].Model)
	assert.Equal(t, time.Second, f.calls[0].Timeout)
}

func TestGenerateTitle_Fallback(t *testing.T) {
	failing := &fakeRouter{failing: map[string]bool{"t/title": true}}
	assert.Equal(t, types.DefaultConversationTitle, newTestCouncil(t, failing).GenerateTitle(context.Background(), "q"))

	blank := &fakeRouter{title: `""`}
	assert.Equal(t, types.DefaultConversationTitle, newTestCouncil(t, blank).GenerateTitle(context.Background(), "q"))
}

func TestRun_FullDeliberation(t *testing.T) {
	f := &fakeRouter{
		answers: map[string]string{"a/one": "A", "b/two": "B", "c/three": "C"},
		rankings: map[string]string{
			"a/one":   "FINAL RANKING:\n1. Response C\n2. Response A\n3. Response B",
			"b/two":   "FINAL RANKING:\n1. Response C\n2. Response B\n3. Response A",
			"c/three": "FINAL RANKING:\n1. Response A\n2. Response C\n3. Response B",
		},
		final: "Final answer",
	}
	c := newTestCouncil(t, f)

	var events []EventType
	result := c.Run(context.Background(), "q", func(e Event) { events = append(events, e.Type) })

	assert.Equal(t, []EventType{
		EventStage1Start, EventStage1Complete,
		EventStage2Start, EventStage2Complete,
		EventStage3Start, EventStage3Complete,
	}, events)
	assert.Len(t, result.Stage1, 3)
	assert.Len(t, result.Stage2, 3)
	assert.Equal(t, "Final answer", result.Stage3.Response)
	require.NotEmpty(t, result.Metadata.AggregateRankings)
	assert.Equal(t, "c/three", result.Metadata.AggregateRankings[0].Model)
	assert.Equal(t, 1.33, result.Metadata.AggregateRankings[0].AverageRank)
}

func TestRun_AllMembersFail(t *testing.T) {
	f := &fakeRouter{failing: map[string]bool{"a/one": true, "b/two": true, "c/three": true}}
	c := newTestCouncil(t, f)

	var events []Event
	result := c.Run(context.Background(), "q", func(e Event) { events = append(events, e) })

	assert.Empty(t, result.Stage1)
	assert.Empty(t, result.Stage2)
	assert.Equal(t, types.StageThreeResult{Model: ErrorModel, Response: AllModelsFailedMessage}, result.Stage3)
	require.Len(t, events, 3)
	assert.Equal(t, EventStage3Complete, events[2].Type)
	assert.Len(t, f.calls, 3, "no ranking or chairman queries after a total failure")
}

func TestRun_NilEmit(t *testing.T) {
	f := &fakeRouter{answers: map[string]string{"a/one": "A"}, failing: map[string]bool{}}
	c := newTestCouncil(t, f)

	assert.NotPanics(t, func() { c.Run(context.Background(), "q", nil) })
}

func TestQueryAll_RespectsMaxParallel(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	slow := completerFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil, errors.New("nope")
	})

	cfg := testConfig()
	cfg.Models = []string{"m1", "m2", "m3", "m4", "m5"}
	cfg.MaxParallel = 2
	c, err := New(cfg, slow, nil, nil)
	require.NoError(t, err)

	c.CollectResponses(context.Background(), "q")
	assert.LessOrEqual(t, maxSeen, 2)
}

type completerFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

func (f completerFunc) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return f(ctx, req)
}
