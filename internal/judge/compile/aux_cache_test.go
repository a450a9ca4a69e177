package compile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vjudge/internal/judge/model"
	"vjudge/internal/judge/sandbox"
	appErr "vjudge/pkg/errors"
)

func auxProblem(version string) *model.Problem {
	return &model.Problem{
		ID:          7,
		JudgeMode:   model.ModeSpecialJudge,
		CaseVersion: version,
		SpjCode:     "int main() { return 0; }",
		SpjLanguage: "C++",
	}
}

func TestAuxCacheCompilesOnceWhileVersionMatches(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.Result{{
		Status: sandbox.StatusAccepted,
		Files:  map[string]string{"main": "spj-binary"},
	}}}
	cache := NewAuxCache(t.TempDir(), NewCompiler(runner))
	ctx := context.Background()

	prog, err := cache.EnsureReady(ctx, auxProblem("v1"))
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if prog.HostPath == "" {
		t.Fatal("expected compiled program on disk")
	}
	data, err := os.ReadFile(prog.HostPath)
	if err != nil {
		t.Fatalf("read binary: %v", err)
	}
	if string(data) != "spj-binary" {
		t.Fatalf("unexpected binary content: %q", data)
	}

	if _, err := cache.EnsureReady(ctx, auxProblem("v1")); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if len(runner.requests) != 1 {
		t.Fatalf("expected exactly one compile, got %d", len(runner.requests))
	}
}

func TestAuxCacheRecompilesOnVersionChange(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.Result{{
		Status: sandbox.StatusAccepted,
		Files:  map[string]string{"main": "spj-binary"},
	}}}
	cache := NewAuxCache(t.TempDir(), NewCompiler(runner))
	ctx := context.Background()

	if _, err := cache.EnsureReady(ctx, auxProblem("v1")); err != nil {
		t.Fatalf("ensure v1: %v", err)
	}
	if _, err := cache.EnsureReady(ctx, auxProblem("v2")); err != nil {
		t.Fatalf("ensure v2: %v", err)
	}
	if len(runner.requests) != 2 {
		t.Fatalf("expected recompile on version change, got %d compiles", len(runner.requests))
	}
}

func TestAuxCacheRecompilesWhenBinaryMissing(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.Result{{
		Status: sandbox.StatusAccepted,
		Files:  map[string]string{"main": "spj-binary"},
	}}}
	dir := t.TempDir()
	cache := NewAuxCache(dir, NewCompiler(runner))
	ctx := context.Background()

	prog, err := cache.EnsureReady(ctx, auxProblem("v1"))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := os.Remove(prog.HostPath); err != nil {
		t.Fatalf("remove binary: %v", err)
	}

	// Version marker still says v1, but the binary is gone.
	if _, err := cache.EnsureReady(ctx, auxProblem("v1")); err != nil {
		t.Fatalf("ensure after removal: %v", err)
	}
	if len(runner.requests) != 2 {
		t.Fatalf("expected recompile for missing binary, got %d compiles", len(runner.requests))
	}
	if _, err := os.Stat(filepath.Join(dir, "spj", "7", versionFileName)); err != nil {
		t.Fatalf("version marker missing: %v", err)
	}
}

func TestAuxCacheModeChangeRecompiles(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.Result{{
		Status: sandbox.StatusAccepted,
		Files:  map[string]string{"main": "aux-binary"},
	}}}
	cache := NewAuxCache(t.TempDir(), NewCompiler(runner))
	ctx := context.Background()

	spj, err := cache.EnsureReady(ctx, auxProblem("v1"))
	if err != nil {
		t.Fatalf("ensure spj: %v", err)
	}

	// Same problem and version, switched to interactive: the checker
	// binary must not be served as the interactor.
	p := auxProblem("v1")
	p.JudgeMode = model.ModeInteractive
	p.SpjCode = "int main() { interact(); }"
	inter, err := cache.EnsureReady(ctx, p)
	if err != nil {
		t.Fatalf("ensure interactive: %v", err)
	}

	if len(runner.requests) != 2 {
		t.Fatalf("expected recompile for mode change, got %d compiles", len(runner.requests))
	}
	if spj.HostPath == inter.HostPath {
		t.Fatalf("modes must not share an artifact path: %s", spj.HostPath)
	}
}

func TestAuxCacheBrokenProgramIsSystemError(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.Result{{
		Status:     sandbox.StatusNonzeroExitStatus,
		ExitStatus: 1,
		Files:      map[string]string{"stderr": "spj.cpp: broken checker"},
	}}}
	cache := NewAuxCache(t.TempDir(), NewCompiler(runner))

	_, err := cache.EnsureReady(context.Background(), auxProblem("v1"))
	if err == nil {
		t.Fatal("expected error for broken auxiliary program")
	}
	if appErr.GetCode(err) != appErr.JudgeSystemError {
		t.Fatalf("expected JudgeSystemError, got %v", appErr.GetCode(err))
	}
}

func TestAuxCacheInterpretedProgramSkipsCompile(t *testing.T) {
	runner := &fakeRunner{}
	cache := NewAuxCache(t.TempDir(), NewCompiler(runner))

	p := auxProblem("v1")
	p.SpjLanguage = "Python3"
	p.SpjCode = "import sys; sys.exit(0)"

	prog, err := cache.EnsureReady(context.Background(), p)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if prog.Source == "" || prog.HostPath != "" {
		t.Fatalf("expected source-backed program, got %+v", prog)
	}
	if len(runner.requests) != 0 {
		t.Fatal("interpreted auxiliary program must not be compiled")
	}
}

func TestAuxCacheMissingSource(t *testing.T) {
	cache := NewAuxCache(t.TempDir(), NewCompiler(&fakeRunner{}))

	p := auxProblem("v1")
	p.SpjCode = ""
	if _, err := cache.EnsureReady(context.Background(), p); err == nil {
		t.Fatal("expected error for missing auxiliary source")
	}
}
