package validation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeRelativePathRejectsAdversarialInputs(t *testing.T) {
	cases := []string{"..", "/etc/passwd", "a/../b", "a/\x00b", "../../etc/shadow"}
	for _, c := range cases {
		if _, err := SanitizeRelativePath(c); err == nil {
			t.Errorf("SanitizeRelativePath(%q) should have been rejected", c)
		}
	}
}

func TestSanitizeRelativePathPreservesSafeStructure(t *testing.T) {
	got, err := SanitizeRelativePath("a/b/c.txt")
	if err != nil {
		t.Fatalf("SanitizeRelativePath: %v", err)
	}
	want := filepath.Join("a", "b", "c.txt")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeRelativePathReplacesEmbeddedSeparators(t *testing.T) {
	got, err := SanitizeRelativePath("weird\\name/ok.txt")
	if err != nil {
		t.Fatalf("SanitizeRelativePath: %v", err)
	}
	want := filepath.Join("weird_name", "ok.txt")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeFlatName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":    "report.pdf",
		"a/b":           "a_b",
		"../secret":     "_secret",
		"":              "unnamed_file",
		"a\x00b":        "ab",
	}
	for in, want := range cases {
		if got := SanitizeFlatName(in); got != want {
			t.Errorf("SanitizeFlatName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExpandPathsSkipsJunkAndFlattensTree(t *testing.T) {
	root := t.TempDir()
	proj := filepath.Join(root, "my-project")
	mustMkdir(t, proj)
	mustMkdir(t, filepath.Join(proj, "src"))
	mustMkdir(t, filepath.Join(proj, "docs"))
	mustWrite(t, filepath.Join(proj, "README.md"), "readme")
	mustWrite(t, filepath.Join(proj, "src", "main.rs"), "fn main() {}")
	mustWrite(t, filepath.Join(proj, "docs", "guide.md"), "guide")
	mustWrite(t, filepath.Join(proj, ".DS_Store"), "junk")

	files, err := ExpandPaths([]string{proj})
	if err != nil {
		t.Fatalf("ExpandPaths: %v", err)
	}

	got := make(map[string]bool)
	for _, f := range files {
		if f.RelativePath == nil {
			t.Fatalf("expected relative path for %s", f.AbsolutePath)
		}
		got[*f.RelativePath] = true
	}

	want := []string{
		"my-project/README.md",
		"my-project/src/main.rs",
		"my-project/docs/guide.md",
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing expected entry %q in %v", w, got)
		}
	}
	if len(got) != len(want) {
		t.Errorf("expected exactly %d entries, got %d: %v", len(want), len(got), got)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", path, err)
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}
