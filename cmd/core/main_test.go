package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SYNC_SCHEDULE", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRun_version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-version"}, &out); err != nil {
		t.Fatalf("run -version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "PawTrail Core v") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestRun_unknownFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-bogus"}, &out); err == nil {
		t.Error("expected an error for an unknown flag")
	}
}

func TestRun_migrateRequiresDatabase(t *testing.T) {
	setupEnv(t)

	err := run(context.Background(), []string{"-migrate"}, &bytes.Buffer{})
	if !errors.Is(err, errors.ErrInvalid) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestRun_invalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("STORAGE_BACKEND", "floppy")

	if err := run(context.Background(), nil, &bytes.Buffer{}); err == nil {
		t.Error("expected a configuration error")
	}
}

func TestRun_offlineUntilCancelled(t *testing.T) {
	setupEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, nil, &bytes.Buffer{}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
