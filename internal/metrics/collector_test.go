package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/llmcouncil/llm"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector("llmcouncil", zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.councilStageDuration)
	assert.NotNil(t, collector.storeOpsTotal)
}

func TestNewCollector_IndependentRegistries(t *testing.T) {
	// 同名 namespace 不应发生重复注册 panic
	assert.NotPanics(t, func() {
		NewCollector("same", nil)
		NewCollector("same", nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/conversations", 200, 100*time.Millisecond, 0, 2048)
	collector.RecordHTTPRequest("GET", "/api/conversations", 204, 50*time.Millisecond, 0, 0)
	collector.RecordHTTPRequest("GET", "/api/conversations", 404, 5*time.Millisecond, 0, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/conversations", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/conversations", "4xx")))
}

func TestCollector_LLMObserver(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())
	observe := collector.LLMObserver("openrouter")

	observe("openai/gpt-5.1", time.Second, llm.ChatUsage{PromptTokens: 10, CompletionTokens: 5, Cost: 0.002}, nil)
	observe("openai/gpt-5.1", time.Second, llm.ChatUsage{}, &llm.Error{Code: llm.ErrRateLimited})
	observe("openai/gpt-5.1", time.Second, llm.ChatUsage{}, errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openrouter", "openai/gpt-5.1", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openrouter", "openai/gpt-5.1", "LLM_RATE_LIMITED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openrouter", "openai/gpt-5.1", "error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openrouter", "openai/gpt-5.1", "prompt")))
	assert.InDelta(t, 0.002, testutil.ToFloat64(collector.llmCost.WithLabelValues("openrouter", "openai/gpt-5.1")), 1e-9)
}

func TestCollector_ObserveStage(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.ObserveStage("stage1", 3*time.Second, 3, 1)
	collector.ObserveStage("stage1", 2*time.Second, 4, 0)

	assert.Equal(t, 7.0, testutil.ToFloat64(collector.councilMembers.WithLabelValues("stage1", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.councilMembers.WithLabelValues("stage1", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.councilStageDuration))

	collector.RecordCouncilRun("sse", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.councilRunsTotal.WithLabelValues("sse", "ok")))
}

func TestCollector_StoreAndCache(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordStoreOperation("file", "get", time.Millisecond, nil)
	collector.RecordStoreOperation("file", "get", time.Millisecond, errors.New("disk"))
	collector.RecordCacheHit("redis")
	collector.RecordCacheMiss("redis")
	collector.RecordDBConnections("postgres", 5, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storeOpsTotal.WithLabelValues("file", "get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storeOpsTotal.WithLabelValues("file", "get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("redis")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_RecordWebhookDelivery(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordWebhookDelivery(200)
	collector.RecordWebhookDelivery(502)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.webhookDeliveries.WithLabelValues("2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.webhookDeliveries.WithLabelValues("5xx")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("POST", "/api/conversations/:id/message", 200, time.Millisecond, 10, 10)
			collector.ObserveStage("stage2", time.Millisecond, 1, 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/conversations/:id/message", "2xx")))
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector("llmcouncil", zap.NewNop())
	collector.RecordCouncilRun("sync", "ok")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "llmcouncil_council_runs_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 100: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code))
	}
}
