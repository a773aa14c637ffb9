package paths

import (
	"strings"
	"testing"
)

func TestParseValidPaths(t *testing.T) {
	input := `# site routes
/posts/hello-world/

/about/
not-a-path
/has whitespace/
/posts/second/
`
	entries, err := parseValidPaths(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{"/posts/hello-world/", "/about/", "/posts/second/"}
	if len(entries) != len(want) {
		t.Fatalf("Expected %d entries, got %d: %v", len(want), len(entries), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("Entry %d: expected %q, got %q", i, want[i], entries[i])
		}
	}
}

func TestParseValidPaths_EmptyIsError(t *testing.T) {
	if _, err := parseValidPaths(strings.NewReader("")); err == nil {
		t.Errorf("Expected error for empty response")
	}
	if _, err := parseValidPaths(strings.NewReader("# comments only\n\n")); err == nil {
		t.Errorf("Expected error when nothing survives filtering")
	}
}

func TestSet_ReadyAndContains(t *testing.T) {
	set := NewSet()

	if set.Ready() {
		t.Errorf("New set must not be ready")
	}
	if set.Contains("/posts/hello/") {
		t.Errorf("Empty set must not contain anything")
	}

	set.Replace([]string{"/posts/hello/", "/about/"})

	if !set.Ready() {
		t.Errorf("Set should be ready after replace")
	}
	if !set.Contains("/posts/hello/") {
		t.Errorf("Expected /posts/hello/ to be present")
	}
	if set.Contains("/missing/") {
		t.Errorf("Unexpected path present")
	}
	if set.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", set.Len())
	}
}

func TestSet_ReplaceIsAtomic(t *testing.T) {
	set := NewSet()
	set.Replace([]string{"/a/"})
	set.Replace([]string{"/b/"})

	if set.Contains("/a/") {
		t.Errorf("Old entries must vanish after replace")
	}
	if !set.Contains("/b/") {
		t.Errorf("New entries must be visible after replace")
	}
}
