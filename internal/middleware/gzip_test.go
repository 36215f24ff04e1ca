package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":` + string(body) + `}`))
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer gr.Close()
		r = gr
	}
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		compressRequest bool
		acceptEncoding  string
		wantEncoding    string
	}{
		{
			name:           "client accepts gzip",
			body:           `{"activity":"share"}`,
			acceptEncoding: "gzip, deflate",
			wantEncoding:   "gzip",
		},
		{
			name:         "client does not accept gzip",
			body:         `{"activity":"daily_login"}`,
			wantEncoding: "",
		},
		{
			name:            "compressed request body",
			body:            `{"order":"12345678903"}`,
			compressRequest: true,
			acceptEncoding:  "gzip",
			wantEncoding:    "gzip",
		},
		{
			name:            "compressed request, plain response",
			body:            `{"stage":"dispatched"}`,
			compressRequest: true,
			wantEncoding:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqBody io.Reader = strings.NewReader(tt.body)
			if tt.compressRequest {
				reqBody = gzipBytes(t, tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/internal/orders", reqBody)
			if tt.compressRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()

			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))
			assert.Equal(t, `{"received":`+tt.body+`}`, readBody(t, res))
		})
	}
}

func TestGzipMiddleware_NoContentIsNotCompressed(t *testing.T) {
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user/achievements", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Zero(t, w.Body.Len())
}

func TestGzipMiddleware_EmptyBodyIsValidGzip(t *testing.T) {
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/internal/orders", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
	assert.Empty(t, readBody(t, res))
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	called := false
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/internal/orders", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}
