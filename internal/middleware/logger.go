package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/metrics"
)

// RequestIDHeader: заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-ID"

type responseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	data *responseData
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.data.status == 0 {
		w.data.status = http.StatusOK
	}
	size, err := w.ResponseWriter.Write(b)
	w.data.size += size
	return size, err
}

func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	if w.data.status == 0 {
		w.data.status = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Logger пишет в лог каждый запрос с методом, путём, статусом, размером ответа, длительностью и идентификатором запроса.
// Длительность также попадает в гистограмму Prometheus.
// Идентификатор берётся из X-Request-ID или генерируется и возвращается клиенту.
func Logger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			data := &responseData{}
			lw := &loggingResponseWriter{ResponseWriter: w, data: data}

			next.ServeHTTP(lw, r)

			if data.status == 0 {
				data.status = http.StatusOK
			}

			duration := time.Since(start)
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, strconv.Itoa(data.status)).Observe(duration.Seconds())

			logger.Info("request",
				zap.String("requestID", requestID),
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Int("status", data.status),
				zap.Int("size", data.size),
				zap.Duration("duration", duration),
			)
		})
	}
}
