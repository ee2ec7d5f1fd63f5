package knowledge

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "knowledge.json.lock")
	first, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if _, err := AcquireLock(path); !errors.Is(err, ErrStoreLocked) {
		t.Fatalf("second lock err = %v, want ErrStoreLocked", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	_ = again.Release()
	_ = again.Release()
}
