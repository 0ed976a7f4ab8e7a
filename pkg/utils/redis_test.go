package utils

import (
	"context"
	"testing"
	"time"
)

func TestLockScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if lockReleaseScript == nil || lockExtendScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireLock_RejectsInvalidArgs(t *testing.T) {
	if _, err := AcquireLock(context.Background(), nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
