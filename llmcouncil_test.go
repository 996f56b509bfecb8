package llmcouncil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/BaSui01/llmcouncil/config"
	"github.com/BaSui01/llmcouncil/internal/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppIsReExported(t *testing.T) {
	assert.Equal(t, reflect.TypeOf((*app.App)(nil)), reflect.TypeOf((*App)(nil)))
	assert.Equal(t, reflect.TypeOf(app.Option(nil)), reflect.TypeOf(Option(nil)))

	var _ http.Handler = (*App)(nil)
}

func TestNew_ServesTheAppHandler(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "conversations")

	a, err := New(context.Background(), WithConfig(cfg), WithVersion("v-test", "", ""))
	require.NoError(t, err)
	defer a.Close()

	var inner *app.App = a
	assert.Same(t, inner, a)

	w := httptest.NewRecorder()
	a.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"LLM Council API"}`, w.Body.String())

	w = httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Contains(t, w.Body.String(), "v-test")
}
