package sessionindex

import (
	"errors"
	"testing"

	"github.com/HyphaGroup/warden/internal/event"
)

func openTest(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestRecordAndLookupByDir(t *testing.T) {
	idx := openTest(t)
	token := event.ResumeToken{Engine: "codex", Value: "thread_1"}

	if err := idx.Record(token, "/work/a", "fix tests"); err != nil {
		t.Fatal(err)
	}

	entry, err := idx.LookupByDir("codex", "/work/a")
	if err != nil {
		t.Fatalf("LookupByDir error = %v", err)
	}
	if entry.Token != token || entry.Title != "fix tests" {
		t.Errorf("entry = %+v", entry)
	}

	if _, err := idx.LookupByDir("codex", "/work/other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing dir error = %v, want ErrNotFound", err)
	}
	if _, err := idx.LookupByDir("claude", "/work/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong engine error = %v, want ErrNotFound", err)
	}
}

func TestRecordUpsertKeepsFields(t *testing.T) {
	idx := openTest(t)
	token := event.ResumeToken{Engine: "claude", Value: "sess_1"}

	if err := idx.Record(token, "/work/a", "first title"); err != nil {
		t.Fatal(err)
	}
	// A later observation without dir/title must not blank them.
	if err := idx.Record(token, "", ""); err != nil {
		t.Fatal(err)
	}

	entry, err := idx.LookupByDir("claude", "/work/a")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Title != "first title" {
		t.Errorf("title = %q, want preserved", entry.Title)
	}
}

func TestRecent(t *testing.T) {
	idx := openTest(t)
	for _, v := range []string{"a", "b", "c"} {
		if err := idx.Record(event.ResumeToken{Engine: "codex", Value: v}, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Record(event.ResumeToken{Engine: "pi", Value: "p"}, "", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := idx.Recent("codex", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent = %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Token.Engine != "codex" {
			t.Errorf("engine filter leaked %v", e.Token)
		}
	}

	all, err := idx.Recent("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("Recent all = %d, want 4", len(all))
	}
}

func TestForget(t *testing.T) {
	idx := openTest(t)
	token := event.ResumeToken{Engine: "kimi", Value: "k1"}
	if err := idx.Record(token, "/w", ""); err != nil {
		t.Fatal(err)
	}
	if err := idx.Forget(token); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.LookupByDir("kimi", "/w"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after Forget error = %v, want ErrNotFound", err)
	}
	// Idempotent.
	if err := idx.Forget(token); err != nil {
		t.Fatal(err)
	}
}

func TestNilIndexIsSafe(t *testing.T) {
	var idx *Index
	if err := idx.Record(event.ResumeToken{Engine: "codex", Value: "x"}, "", ""); err != nil {
		t.Errorf("nil Record = %v", err)
	}
	if _, err := idx.LookupByDir("codex", "/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("nil LookupByDir = %v", err)
	}
	entries, err := idx.Recent("", 5)
	if err != nil || entries != nil {
		t.Errorf("nil Recent = %v, %v", entries, err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}
}
