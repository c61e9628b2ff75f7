package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDispatcherHandleDiscardsOnSuccess(t *testing.T) {
	dataDir := t.TempDir()
	baseDir := MessagesDir(dataDir, "folder-a")
	if err := EnsureFolderDirs(dataDir, "folder-a"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := WriteFrame(baseDir, map[string]string{"text": "hello"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	claimed, err := Claim(baseDir)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("setup: claim failed: %v, %d files", err, len(claimed))
	}

	d := &Dispatcher{}
	var gotFolder string
	var gotData []byte
	d.handle(context.Background(), dataDir, "folder-a", baseDir, claimed[0], func(ctx context.Context, folder string, data []byte) error {
		gotFolder, gotData = folder, data
		return nil
	})

	if gotFolder != "folder-a" {
		t.Fatalf("expected dispatch to receive folder-a, got %q", gotFolder)
	}
	if len(gotData) == 0 {
		t.Fatal("expected dispatch to receive frame data")
	}
	if _, err := os.Stat(filepath.Join(ClaimDir(baseDir), claimed[0].Name)); !os.IsNotExist(err) {
		t.Fatal("expected the claimed frame to be discarded after a successful dispatch")
	}
}

func TestDispatcherHandleQuarantinesOnFailure(t *testing.T) {
	dataDir := t.TempDir()
	baseDir := TasksDir(dataDir, "folder-b")
	if err := EnsureFolderDirs(dataDir, "folder-b"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := WriteFrame(baseDir, map[string]string{"text": "bad"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	claimed, err := Claim(baseDir)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("setup: claim failed: %v, %d files", err, len(claimed))
	}

	d := &Dispatcher{}
	d.handle(context.Background(), dataDir, "folder-b", baseDir, claimed[0], func(ctx context.Context, folder string, data []byte) error {
		return errBoom
	})

	quarantined := filepath.Join(ErrorsDir(dataDir), "folder-b-"+claimed[0].Name)
	if _, err := os.Stat(quarantined); err != nil {
		t.Fatalf("expected the frame to be quarantined at %s, got: %v", quarantined, err)
	}
}

func TestDispatcherHandleDiscardsCloseSentinel(t *testing.T) {
	dataDir := t.TempDir()
	baseDir := MessagesDir(dataDir, "folder-c")
	if err := EnsureFolderDirs(dataDir, "folder-c"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := WriteCloseSentinel(baseDir); err != nil {
		t.Fatalf("setup: %v", err)
	}
	claimed, err := Claim(baseDir)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("setup: claim failed: %v, %d files", err, len(claimed))
	}

	d := &Dispatcher{}
	called := false
	d.handle(context.Background(), dataDir, "folder-c", baseDir, claimed[0], func(ctx context.Context, folder string, data []byte) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("expected the close sentinel to never reach dispatch")
	}
	if _, err := os.Stat(filepath.Join(ClaimDir(baseDir), CloseSentinel)); !os.IsNotExist(err) {
		t.Fatal("expected the close sentinel to be discarded")
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
