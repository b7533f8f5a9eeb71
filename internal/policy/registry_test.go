package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewRegistrySeedsDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "policies")
	r, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	vision := r.Get("vision")
	if vision == nil {
		t.Fatal("expected a default vision policy")
	}
	if vision.RequiredSubmissions != 5 {
		t.Fatalf("vision.RequiredSubmissions = %d, want 5", vision.RequiredSubmissions)
	}

	if r.Get("unknown-type") != nil {
		t.Fatal("expected no policy for an unconfigured type")
	}
}

func TestRegistryReloadPicksUpNewFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "policies")
	r, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	content := "type: legal\nrequired_submissions: 7\n"
	if err := os.WriteFile(filepath.Join(dir, "legal.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	if r.Get("legal") != nil {
		t.Fatal("expected new file to be invisible before Reload")
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	legal := r.Get("legal")
	if legal == nil || legal.RequiredSubmissions != 7 {
		t.Fatalf("Get(legal) = %+v, want required_submissions=7", legal)
	}
}

func TestRegistryRejectsDuplicateType(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "policies")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("type: dup\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("type: dup\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewRegistry(dir); err == nil {
		t.Fatal("expected duplicate type error")
	}
}

func TestRegistryListSortedByType(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "policies")
	r, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	if list[0].Type != "audio" || list[1].Type != "vision" {
		t.Fatalf("List() = %v, want [audio, vision]", list)
	}
}
