package httpapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger for the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel is the verbosity of the per-request access line. Higher levels
// log more.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"off", "error", "info", "debug"}

func (l LogLevel) String() string {
	if l < LevelOff || l > LevelDebug {
		return "LogLevel(" + strconv.Itoa(int(l)) + ")"
	}
	return levelNames[l]
}

// parseLevel is case-insensitive; unknown names fall back to LevelInfo.
func parseLevel(s string) LogLevel {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return LogLevel(i)
		}
	}
	return LevelInfo
}

// read once at startup; requests may override it
var defaultLogLevel = parseLevel(os.Getenv("BATCHD_HTTP_LOG_LEVEL"))

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestLogger writes one line per request. Errors (status >= 500) are
// logged at LevelError and above, everything else at LevelInfo.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		ww := wrap(w, r)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := statusOf(ww)
		var ev *zerolog.Event
		switch {
		case status >= 500 && lvl >= LevelError:
			ev = zlog.Error()
		case lvl >= LevelDebug:
			ev = zlog.Debug()
		case lvl >= LevelInfo:
			ev = zlog.Info()
		default:
			return
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}
