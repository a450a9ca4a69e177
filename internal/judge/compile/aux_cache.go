package compile

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/logger"
)

const versionFileName = "version"

// AuxCache keeps compiled auxiliary programs (special judges and
// interactors) on local disk, one directory per judge mode and problem,
// with a version marker beside the binary. A program is recompiled only when the binary is
// missing or the marker no longer matches the problem's current version.
//
// Two workers may race and both recompile the same program; both write the
// same bytes, so the race is harmless and the cache takes no locks.
type AuxCache struct {
	dir      string
	compiler *Compiler
}

func NewAuxCache(dir string, compiler *Compiler) *AuxCache {
	return &AuxCache{dir: dir, compiler: compiler}
}

// EnsureReady returns a runnable auxiliary program for the problem,
// compiling and caching it first when needed.
func (c *AuxCache) EnsureReady(ctx context.Context, problem *model.Problem) (*Program, error) {
	if problem.SpjCode == "" {
		return nil, appErr.Newf(appErr.AuxProgramMissing, "problem %d has no auxiliary program source", problem.ID)
	}
	lang, ok := Lookup(problem.SpjLanguage)
	if !ok {
		return nil, appErr.Newf(appErr.LanguageNotSupported, "auxiliary program language %q", problem.SpjLanguage)
	}

	if !lang.Compiled() {
		// Interpreted auxiliary programs run straight from source.
		return &Program{Language: lang, Source: problem.SpjCode}, nil
	}

	// Keyed by mode as well: a problem switched between special judge and
	// interactive must not reuse the other mode's binary.
	problemDir := filepath.Join(c.dir, string(problem.JudgeMode), strconv.FormatInt(problem.ID, 10))
	exePath := filepath.Join(problemDir, lang.ExeName)

	if c.upToDate(problemDir, exePath, problem.CaseVersion) {
		return &Program{Language: lang, HostPath: exePath}, nil
	}

	exe, err := c.compiler.CompileToBytes(ctx, lang, problem.SpjCode)
	if err != nil {
		// A broken auxiliary program is the problem's fault, not the
		// submitter's; it must not surface as a compile error.
		logger.Error(ctx, "auxiliary program build failed",
			zap.Int64("problem_id", problem.ID), zap.Error(err))
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError,
			"auxiliary program for problem %d failed to build", problem.ID)
	}

	if err := os.MkdirAll(problemDir, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create auxiliary program dir")
	}
	if err := os.WriteFile(exePath, exe, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "write auxiliary program")
	}
	if err := os.WriteFile(filepath.Join(problemDir, versionFileName), []byte(problem.CaseVersion), 0o644); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "write version marker")
	}

	logger.Info(ctx, "compiled auxiliary program",
		zap.Int64("problem_id", problem.ID),
		zap.String("version", problem.CaseVersion))
	return &Program{Language: lang, HostPath: exePath}, nil
}

func (c *AuxCache) upToDate(problemDir, exePath, version string) bool {
	if _, err := os.Stat(exePath); err != nil {
		return false
	}
	marker, err := os.ReadFile(filepath.Join(problemDir, versionFileName))
	if err != nil {
		return false
	}
	return string(marker) == version
}
