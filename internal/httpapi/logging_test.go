package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelInfo,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"DEBUG": LevelDebug,
		"weird": LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogLevelString(t *testing.T) {
	if LevelError.String() != "error" || LogLevel(9).String() != "LogLevel(9)" {
		t.Fatalf("unexpected names %q %q", LevelError, LogLevel(9))
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer SetLogger(zerolog.Nop())
	r := NewMux(&mockService{})

	get(t, r, "/healthz")
	if out := buf.String(); !strings.Contains(out, `"path":"/healthz"`) || !strings.Contains(out, `"status":200`) {
		t.Fatalf("missing request line: %q", out)
	}

	buf.Reset()
	get(t, r, "/healthz?log=off")
	if buf.Len() != 0 {
		t.Fatalf("log=off still logged: %q", buf.String())
	}

	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Log-Level", "debug")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Fatalf("debug override ignored: %q", buf.String())
	}
}
