//go:build scripttests
// +build scripttests

package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts runs the testdata/*.txt transcripts against a freshly built
// memsql-loader binary, mirroring tysonthomas9-beads/cmd/bd's scripttest
// harness (same build tag, same script.NewEngine/scripttest.Test wiring).
func TestScripts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("scripttest uses Unix shell commands (sh -c), skipping on Windows")
	}

	exeName := "memsql-loader"
	binDir := t.TempDir()
	exe := filepath.Join(binDir, exeName)
	if err := exec.Command("go", "build", "-o", exe, ".").Run(); err != nil {
		t.Fatal(err)
	}

	timeout := 5 * time.Second
	engine := script.NewEngine()
	engine.Cmds["memsql-loader"] = script.Program(exe, nil, timeout)

	currentPath := os.Getenv("PATH")
	env := []string{"PATH=" + binDir + ":" + currentPath}

	scripttest.Test(t, context.Background(), engine, env, "testdata/*.txt")
}
