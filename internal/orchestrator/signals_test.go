package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSignalWatcherCancel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "signals")
	sw, err := NewSignalWatcher(dir)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if sw.Cancelled() {
		t.Fatal("cancelled before any signal")
	}

	if err := os.WriteFile(filepath.Join(dir, "cancel"), nil, 0o644); err != nil {
		t.Fatalf("write signal: %v", err)
	}
	if !sw.Cancelled() {
		t.Fatal("cancel signal not observed")
	}

	sw.Clear()
	if sw.Cancelled() {
		t.Fatal("cancel survived Clear")
	}
}

func TestSignalWatcherPauseResumesOnRemoval(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "signals")
	sw, err := NewSignalWatcher(dir)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	pausePath := filepath.Join(dir, "pause")
	if err := os.WriteFile(pausePath, nil, 0o644); err != nil {
		t.Fatalf("write signal: %v", err)
	}
	if !sw.Paused() {
		t.Fatal("pause signal not observed")
	}

	if err := os.Remove(pausePath); err != nil {
		t.Fatalf("remove signal: %v", err)
	}
	if sw.Paused() {
		t.Fatal("pause persisted after the file was removed")
	}
}
