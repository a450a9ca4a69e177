package compile

import (
	"context"

	"go.uber.org/zap"

	"vjudge/internal/judge/sandbox"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/logger"
	"vjudge/pkg/utils/textutil"
)

const (
	compileProcLimit = 128
	compileOutputMax = 64 * 1024 * 1024
	compileStreamMax = 10 * 1024
	defaultCompileMs = 10000
	defaultCompileMB = 512
)

// Compiler turns source code into a sandbox artifact. The returned artifact
// id stays alive inside the sandbox until the caller deletes it; forgetting
// to delete leaks sandbox memory.
type Compiler struct {
	runner sandbox.Runner
}

func NewCompiler(runner sandbox.Runner) *Compiler {
	return &Compiler{runner: runner}
}

// Compile builds source and returns the artifact id of the executable. A
// failed build is reported as a CompileFailed error carrying the compiler's
// output; sandbox faults are SandboxError.
func (c *Compiler) Compile(ctx context.Context, lang Language, source string) (string, error) {
	res, err := c.run(ctx, lang, source, true)
	if err != nil {
		return "", err
	}
	fileID, ok := res.FileIDs[lang.ExeName]
	if !ok || fileID == "" {
		return "", appErr.Newf(appErr.SandboxError, "compile produced no artifact for %s", lang.ExeName)
	}
	logger.Debug(ctx, "compiled program",
		zap.String("language", lang.Name), zap.String("artifact", fileID))
	return fileID, nil
}

// CompileToBytes builds source and returns the executable bytes instead of
// a cached artifact. Used for auxiliary programs persisted on local disk.
func (c *Compiler) CompileToBytes(ctx context.Context, lang Language, source string) ([]byte, error) {
	res, err := c.run(ctx, lang, source, false)
	if err != nil {
		return nil, err
	}
	exe, ok := res.Files[lang.ExeName]
	if !ok {
		return nil, appErr.Newf(appErr.SandboxError, "compile produced no output for %s", lang.ExeName)
	}
	return []byte(exe), nil
}

func (c *Compiler) run(ctx context.Context, lang Language, source string, cached bool) (*sandbox.Result, error) {
	if !lang.Compiled() {
		return nil, appErr.Newf(appErr.LanguageNotSupported, "%s has no compile stage", lang.Name)
	}

	timeLimitMs := lang.CompileTimeLimitMs
	if timeLimitMs <= 0 {
		timeLimitMs = defaultCompileMs
	}
	memoryLimitMB := lang.CompileMemoryLimitMB
	if memoryLimitMB <= 0 {
		memoryLimitMB = defaultCompileMB
	}

	cmd := sandbox.Cmd{
		Args: lang.CompileArgs,
		Env:  lang.Env,
		Files: []*sandbox.CmdFile{
			{Content: sandbox.StrPtr("")},
			{Name: sandbox.StrPtr("stdout"), Max: sandbox.Int64Ptr(compileStreamMax)},
			{Name: sandbox.StrPtr("stderr"), Max: sandbox.Int64Ptr(compileStreamMax)},
		},
		CPULimit:    uint64(timeLimitMs) * 1e6,
		ClockLimit:  uint64(timeLimitMs) * 2e6,
		MemoryLimit: uint64(memoryLimitMB) * 1024 * 1024,
		ProcLimit:   compileProcLimit,
		CopyIn: map[string]sandbox.CmdFile{
			lang.SrcName: {Content: &source},
		},
		CopyOut:    []string{"stdout", "stderr"},
		CopyOutMax: compileOutputMax,
	}
	if cached {
		cmd.CopyOutCached = []string{lang.ExeName}
	} else {
		cmd.CopyOut = append(cmd.CopyOut, lang.ExeName)
	}

	results, err := c.runner.Run(ctx, &sandbox.Request{Cmd: []sandbox.Cmd{cmd}})
	if err != nil {
		return nil, err
	}
	res := results[0]

	if res.Status != sandbox.StatusAccepted {
		output := textutil.MergeNonEmpty(textutil.DefaultMaxCaptured,
			res.Files["stderr"], res.Files["stdout"], res.Error)
		if output == "" {
			output = string(res.Status)
		}
		return nil, appErr.New(appErr.CompileFailed).WithMessage(output)
	}
	return &res, nil
}
