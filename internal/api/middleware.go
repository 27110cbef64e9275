package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/session"
)

// statusWriter remembers the status code written.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.status = code
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

func (h *Handler) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, sw.status, elapsed)
		h.Log.Info("request",
			zap.String("method", r.Method),
			zap.String("uri", r.URL.RequestURI()),
			zap.Int("status", sw.status),
			zap.Duration("duration", elapsed),
		)
	})
}

func (h *Handler) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				w.Header().Set("Connection", "close")
				h.Log.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				h.fail(w, r, banners.Wrap(fmt.Errorf("panic: %v", rec), banners.BackendUnavailable))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireUser turns away requests without a signed-in user. Signing in is
// handled elsewhere and leaves the user id in the shared session.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session.FromContext(r.Context()).UserID() == "" {
			data := h.newTemplateData(r)
			data.Error = "Sign in to continue"
			h.render(w, r, http.StatusUnauthorized, "error", data)
			return
		}
		next.ServeHTTP(w, r)
	})
}
