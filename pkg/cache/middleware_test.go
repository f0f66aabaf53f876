package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	})
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		method    string
		wantCalls int
		wantCache string
	}{
		{name: "GET cached", status: http.StatusOK, method: http.MethodGet, wantCalls: 1, wantCache: "HIT"},
		{name: "POST passes through", status: http.StatusOK, method: http.MethodPost, wantCalls: 2, wantCache: ""},
		{name: "errors not cached", status: http.StatusNotFound, method: http.MethodGet, wantCalls: 2, wantCache: "MISS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, tt.status))

			first := serve(h, tt.method, "/registries/prefix")
			second := serve(h, tt.method, "/registries/prefix")

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCache, second.Header().Get("X-Cache"))
			assert.Equal(t, tt.status, second.Code)
			assert.Equal(t, first.Body.String(), second.Body.String())
		})
	}
}

func TestMiddleware_KeysOnRequestURI(t *testing.T) {
	calls := 0
	h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, http.StatusOK))

	serve(h, http.MethodGet, "/registries/prefix")
	serve(h, http.MethodGet, "/registries/prefix/SCREW")
	serve(h, http.MethodGet, "/registries/prefix?x=1")
	assert.Equal(t, 3, calls)
}

func TestMiddleware_NilCachePassesThrough(t *testing.T) {
	calls := 0
	h := Middleware(nil)(countingHandler(&calls, http.StatusOK))
	rec := serve(h, http.MethodGet, "/registries/prefix")
	serve(h, http.MethodGet, "/registries/prefix")

	assert.Equal(t, 2, calls)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
