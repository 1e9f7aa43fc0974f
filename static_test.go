package svcrouter

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), content, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestStaticServe(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":     {Data: []byte("<h1>hi</h1>")},
		"css/site.css":   {Data: []byte("body{}")},
		"binary.bin":     {Data: []byte{0xff, 0xfe, 0x00}},
		"empty/.keep":    {Data: []byte{}},
		"unicode/ok.txt": {Data: []byte("héllo wörld")},
	}
	s := NewStaticHandlerFS(fsys, zerolog.Nop())

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"index.html", http.StatusOK, "<h1>hi</h1>"},
		{"css/site.css", http.StatusOK, "body{}"},
		{"unicode/ok.txt", http.StatusOK, "héllo wörld"},
		{"missing.html", http.StatusNotFound, "Not Found"},
		{"binary.bin", http.StatusNotFound, "Not Found"},
		{"../secret", http.StatusNotFound, "Not Found"},
		{"css/../../secret", http.StatusNotFound, "Not Found"},
		{"", http.StatusNotFound, "Not Found"},
		{"empty", http.StatusNotFound, "Not Found"},
	}
	for _, tt := range tests {
		res, err := s.Serve(tt.path)
		if res.StatusCode != tt.status || res.Body != tt.body {
			t.Fatalf("%q: %d %q", tt.path, res.StatusCode, res.Body)
		}
		if tt.status == http.StatusNotFound && !errors.Is(err, ErrRouteNotFound) {
			t.Fatalf("%q: error %v", tt.path, err)
		}
	}
}

func TestStaticDirDoesNotEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "public")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, parent, "secret.txt", []byte("top secret"))
	writeFile(t, root, "page.txt", []byte("public page"))

	if err := os.Symlink(filepath.Join(parent, "secret.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(parent, filepath.Join(root, "up")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("page.txt", filepath.Join(root, "alias.txt")); err != nil {
		t.Fatal(err)
	}

	s, err := NewStaticHandler(root, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := s.Serve("page.txt"); res.Body != "public page" {
		t.Fatalf("body is %q", res.Body)
	}
	// links that stay inside the root are served
	if res, _ := s.Serve("alias.txt"); res.Body != "public page" {
		t.Fatalf("alias body is %q", res.Body)
	}
	for _, path := range []string{"../secret.txt", "link.txt", "up/secret.txt"} {
		if res, _ := s.Serve(path); res.StatusCode != http.StatusNotFound {
			t.Fatalf("%s escaped the static root: %d %q", path, res.StatusCode, res.Body)
		}
	}
}

func TestStaticMissingDir(t *testing.T) {
	if _, err := NewStaticHandler(filepath.Join(t.TempDir(), "missing"), zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
