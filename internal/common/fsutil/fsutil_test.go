package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cases := map[string]string{
		"":            "",
		"/tmp":        "/tmp",
		"~":           home,
		"~/models/x":  filepath.Join(home, "models", "x"),
		"rel/~/thing": "rel/~/thing",
		"~alice/x":    "~alice/x",
	}
	for in, want := range cases {
		got, err := ExpandHome(in)
		if err != nil || got != want {
			t.Fatalf("ExpandHome(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestResolve(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	if got, err := Resolve(""); err != nil || got != "" {
		t.Fatalf("empty: %q %v", got, err)
	}
	got, err := Resolve("~/runs")
	if err != nil || got != filepath.Join(home, "runs") {
		t.Fatalf("tilde: %q %v", got, err)
	}
	got, err = Resolve("runs")
	if err != nil || !filepath.IsAbs(got) {
		t.Fatalf("relative: %q %v", got, err)
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	if PathExists(p) {
		t.Fatalf("should not exist yet")
	}
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !PathExists(p) || !PathExists(dir) {
		t.Fatalf("should exist")
	}
}
