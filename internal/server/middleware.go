package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	ghandlers "github.com/gorilla/handlers"
	"github.com/rs/zerolog"
)

// requestLogger logs one record per request with status, size and latency.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(h, w, r)

			ev := log.Info()
			switch {
			case m.Code >= 500:
				ev = log.Error()
			case m.Code >= 400:
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", m.Code).
				Int64("bytes", m.Written).
				Dur("duration", m.Duration).
				Msg("http request")
		})
	}
}

// maxBody bounds request bodies. Reads past the limit fail with
// *http.MaxBytesError.
func maxBody(limit int64) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			h.ServeHTTP(w, r)
		})
	}
}

type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(v...))
}

func recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return ghandlers.RecoveryHandler(ghandlers.RecoveryLogger(recoveryLogger{log: log}))
}

// cors allows the configured origins with any request header. Preflight
// requests get their Access-Control-Request-Headers echoed back as allowed.
func cors(origins []string) func(http.Handler) http.Handler {
	opts := []ghandlers.CORSOption{
		ghandlers.AllowedOrigins(origins),
		ghandlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"}),
		ghandlers.AllowedHeaders([]string{"Accept", "Accept-Encoding", "Authorization", "Content-Length", "Content-Type", "X-Requested-With"}),
		ghandlers.ExposedHeaders([]string{"X-Audio-Location", "Content-Disposition"}),
		ghandlers.AllowCredentials(),
	}
	return func(h http.Handler) http.Handler {
		base := ghandlers.CORS(opts...)(h)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested := r.Header.Get("Access-Control-Request-Headers")
			if r.Method != http.MethodOptions || requested == "" {
				base.ServeHTTP(w, r)
				return
			}
			preflight := append(opts[:len(opts):len(opts)], ghandlers.AllowedHeaders(strings.Split(requested, ",")))
			ghandlers.CORS(preflight...)(h).ServeHTTP(w, r)
		})
	}
}
