package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quantarax/relay/internal/validation"
)

func TestBuildFileInfosFlatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	files, err := BuildFileInfos([]validation.ExpandedFile{{AbsolutePath: path}})
	if err != nil {
		t.Fatalf("BuildFileInfos: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Info.Name != "report.pdf" {
		t.Fatalf("expected flat name report.pdf, got %q", files[0].Info.Name)
	}
	if files[0].Info.Size != 5 {
		t.Fatalf("expected size 5, got %d", files[0].Info.Size)
	}
	if files[0].Info.RelativePath != nil {
		t.Fatal("expected no relative path for a flat file argument")
	}
}

func TestBuildFileInfosPreservesRelativePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photos", "a.jpg")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rel := "photos/a.jpg"
	files, err := BuildFileInfos([]validation.ExpandedFile{{AbsolutePath: path, RelativePath: &rel}})
	if err != nil {
		t.Fatalf("BuildFileInfos: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Info.RelativePath == nil || *files[0].Info.RelativePath != rel {
		t.Fatalf("expected relative path %q preserved, got %+v", rel, files[0].Info.RelativePath)
	}
}
