package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbedded(t *testing.T) {
	c := Default()
	got, err := c.Render("invite.share", map[string]string{"Code": "AB12CD", "URL": "sudokuduo://join/AB12CD"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "AB12CD") || !strings.HasPrefix(got, "Join my Sudoku Duo match!") {
		t.Fatalf("unexpected text %q", got)
	}
	if _, err := c.Render("invite.share", map[string]string{"Code": "X"}); err == nil {
		t.Fatalf("missing field should fail")
	}
	if _, err := c.Render("nope.nothing", nil); err == nil {
		t.Fatalf("missing key should fail")
	}
	if got := c.Text("nope.nothing", nil, "fallback"); got != "fallback" {
		t.Fatalf("Text fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("errors:\n  match_full: \"Full house\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("errors.match_full", nil, ""); got != "Full house" {
		t.Fatalf("override not applied: %q", got)
	}
	if !c.Has("errors.self_join") {
		t.Fatalf("embedded keys lost after override")
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("errors:\n  match_full: \"Again\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("duplicate key across override files should fail")
	}
}
