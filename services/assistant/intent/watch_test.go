// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitReload(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rules reload")
		return nil
	}
}

func TestRulesWatcher_ReloadsAndKeepsRulesOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, defaultRulesYAML, 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRulesFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadRulesFile: %v", err)
	}
	c, err := NewClassifier(rules, nil)
	if err != nil {
		t.Fatal(err)
	}

	reloads := make(chan error, 4)
	w, err := NewRulesWatcher(c, path,
		WithDebounce(10*time.Millisecond),
		WithReloadHook(func(err error) { reloads <- err }),
	)
	if err != nil {
		t.Fatalf("NewRulesWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	if err := os.WriteFile(path, defaultRulesYAML, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := waitReload(t, reloads); err != nil {
		t.Fatalf("expected successful reload, got %v", err)
	}
	reloaded := c.Rules()
	if reloaded == rules {
		t.Fatal("expected rules to be replaced")
	}

	if err := os.WriteFile(path, []byte("categories: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := waitReload(t, reloads); err == nil {
		t.Fatal("expected reload error for invalid YAML")
	}
	if c.Rules() != reloaded {
		t.Error("expected previous rules to stay in place after a failed reload")
	}

	if res := c.Classify(context.Background(), "hello", nil); res.Intent != Greeting {
		t.Errorf("expected GREETING after failed reload, got %s", res.Intent)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRulesWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, defaultRulesYAML, 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRulesFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := NewClassifier(rules, nil)

	reloads := make(chan error, 1)
	w, err := NewRulesWatcher(c, path,
		WithDebounce(10*time.Millisecond),
		WithReloadHook(func(err error) { reloads <- err }),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-reloads:
		t.Fatalf("unexpected reload: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	if c.Rules() != rules {
		t.Error("rules changed without a rules file event")
	}
}

func TestSetRules_RejectsNil(t *testing.T) {
	rules, err := DefaultRules(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	c, _ := NewClassifier(rules, nil)
	if err := c.SetRules(nil); err == nil {
		t.Error("expected error for nil rules")
	}
	if c.Rules() != rules {
		t.Error("expected rules unchanged")
	}
}

func TestNewRulesWatcher_MissingDirectory(t *testing.T) {
	rules, _ := DefaultRules(context.Background())
	c, _ := NewClassifier(rules, nil)
	if _, err := NewRulesWatcher(c, filepath.Join(t.TempDir(), "absent", "rules.yaml")); err == nil {
		t.Error("expected error for a missing directory")
	}
}
