package middleware

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

type accessLogEntry struct {
	Timestamp string `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Bytes     int    `json:"bytes"`
	Duration  string `json:"duration"`
	Client    string `json:"client,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// responseRecorder captures the status code and body size written downstream.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// AccessLog writes one JSON line per request to the standard logger.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		payload, err := json.Marshal(accessLogEntry{
			Timestamp: start.UTC().Format(time.RFC3339Nano),
			RequestID: GetRequestID(r.Context()),
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    rec.statusOrOK(),
			Bytes:     rec.bytes,
			Duration:  time.Since(start).Round(time.Microsecond).String(),
			Client:    clientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			log.Printf("access log marshal failed: %v", err)
			return
		}
		log.Println(string(payload))
	})
}

// clientIP prefers proxy headers over the socket peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
