package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubServer(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckHealthyEndpoint(t *testing.T) {
	srv := stubServer(t, http.StatusOK, "", "ok")

	result := NewHTTPChecker(srv.URL).Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
	assert.Positive(t, result.Duration)
}

func TestCheckUnhealthyEndpoint(t *testing.T) {
	srv := stubServer(t, http.StatusInternalServerError, "", "boom")

	result := NewHTTPChecker(srv.URL).Check(context.Background())
	assert.False(t, result.Healthy, result.Message)
}

func TestCheckCustomStatusRange(t *testing.T) {
	srv := stubServer(t, http.StatusCreated, "", "")

	result := NewHTTPChecker(srv.URL).WithStatusRange(200, 299).Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
}

func TestCheckSendsCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Probe") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	result := NewHTTPChecker(srv.URL).WithHeader("X-Probe", "yes").Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
}

func TestCheckTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	result := NewHTTPChecker(srv.URL).WithTimeout(50 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy, result.Message)
}

func TestCheckCancelledContext(t *testing.T) {
	srv := stubServer(t, http.StatusOK, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewHTTPChecker(srv.URL).Check(ctx)
	assert.False(t, result.Healthy, result.Message)
}

func TestFetchBodyReturnsBodyAndContentType(t *testing.T) {
	srv := stubServer(t, http.StatusOK, "text/html; charset=utf-8", "<html>proxy marker</html>")

	body, contentType, err := NewHTTPChecker(srv.URL).FetchBody(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<html>proxy marker</html>", string(body))
	assert.Contains(t, contentType, "text/html")
}

func TestFetchBodyRejectsBadStatus(t *testing.T) {
	srv := stubServer(t, http.StatusNotFound, "", "")

	_, _, err := NewHTTPChecker(srv.URL).FetchBody(context.Background())
	assert.Error(t, err)
}

func TestCheckerType(t *testing.T) {
	assert.Equal(t, CheckTypeHTTP, NewHTTPChecker("http://example.com").Type())
}
