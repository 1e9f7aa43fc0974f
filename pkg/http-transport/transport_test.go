package httptransport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/always-cache/svcrouter"
	"github.com/always-cache/svcrouter/registry"
)

func newTestServer(t *testing.T) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	reg := registry.New()
	reg.MustRegister("service1", registry.Echo("service1", "http://default-service1-url"))
	promRegistry := prometheus.NewRegistry()
	router := svcrouter.CreateRouter(svcrouter.Config{
		Registry: reg,
		Logger:   &logger,
		Metrics:  svcrouter.NewMetrics(promRegistry),
	})
	srv := httptest.NewServer(NewHandler(router, logger))
	t.Cleanup(srv.Close)
	return srv, promRegistry
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func TestServiceRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	res, body := get(t, srv.URL+"/service/service1")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Result from service1 at URL: http://default-service1-url", body)
	assert.Equal(t, int64(len(body)), res.ContentLength)
	assert.Equal(t, "svcrouter; fwd=uri-miss; stored", res.Header.Get(CacheStatusHeader))
	assert.NotEmpty(t, res.Header.Get("Request-Id"))

	res, body = get(t, srv.URL+"/service/service1?ignored=1")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Result from service1 at URL: http://default-service1-url", body)
	assert.Equal(t, "svcrouter; hit", res.Header.Get(CacheStatusHeader))
}

func TestErrorRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	res, body := get(t, srv.URL+"/service/unknown")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Service not found", body)

	res, body = get(t, srv.URL+"/nowhere")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Not Found", body)
	assert.Empty(t, res.Header.Get(CacheStatusHeader))

	res, body = get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "OK", body)

	post, err := http.Post(srv.URL+"/service/service1", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer post.Body.Close()
	postBody, _ := io.ReadAll(post.Body)
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
	assert.Equal(t, "Method Not Allowed", string(postBody))
}

func TestRecoversHandlerPanic(t *testing.T) {
	h := svcrouter.HandlerFunc(func(ctx context.Context, method, path string) svcrouter.Response {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	NewHandler(h, zerolog.New(io.Discard)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminHandler(t *testing.T) {
	srv, promRegistry := newTestServer(t)
	get(t, srv.URL+"/service/service1")

	admin := httptest.NewServer(NewAdminHandler(promRegistry))
	defer admin.Close()

	res, body := get(t, admin.URL+"/metrics")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `svcrouter_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, body, `svcrouter_backend_invocations_total{result="success",service="service1"} 1`)
	assert.Contains(t, body, `svcrouter_responses_total{code="200"} 1`)

	res, body = get(t, admin.URL+"/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "OK", body)
}
