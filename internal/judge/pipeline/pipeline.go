// Package pipeline drives one submission through compilation, per-case
// execution and aggregation.
package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"vjudge/internal/judge/aggregate"
	"vjudge/internal/judge/compile"
	"vjudge/internal/judge/model"
	"vjudge/internal/judge/run"
	"vjudge/internal/judge/sandbox"
	"vjudge/internal/judge/testdata"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/logger"
	"vjudge/pkg/utils/textutil"
)

// ProgressFunc receives live status transitions while a submission is being
// judged. It must not block; persistence failures are the receiver's
// problem, the pipeline does not roll back on them.
type ProgressFunc func(ctx context.Context, status model.Status)

// Pipeline judges submissions. It is stateless across submissions and safe
// for concurrent use.
type Pipeline struct {
	runner     sandbox.Runner
	compiler   *compile.Compiler
	auxCache   *compile.AuxCache
	data       *testdata.Cache
	aggregator *aggregate.Aggregator
}

func New(runner sandbox.Runner, compiler *compile.Compiler, auxCache *compile.AuxCache, data *testdata.Cache) *Pipeline {
	return &Pipeline{
		runner:     runner,
		compiler:   compiler,
		auxCache:   auxCache,
		data:       data,
		aggregator: aggregate.New(),
	}
}

// Judge runs the submission through the full pipeline and always returns a
// terminal outcome. Failures are classified into the outcome's status:
// rejections of the user's code become CompileError, bad submissions and
// crashed auxiliary programs become SubmittedFailed and everything else,
// broken auxiliary programs included, becomes SystemError. The sandbox
// artifact of a successful compile is deleted on every exit path.
func (p *Pipeline) Judge(ctx context.Context, sub *model.Submission, problem *model.Problem, progress ProgressFunc) *model.SubmissionOutcome {
	report := func(status model.Status) {
		if progress != nil {
			progress(ctx, status)
		}
	}

	report(model.StatusCompiling)

	lang, ok := compile.Lookup(sub.Language)
	if !ok {
		return failure(appErr.Newf(appErr.LanguageNotSupported, "language %q, supported: %s",
			sub.Language, strings.Join(compile.Supported(), ", ")))
	}

	user := compile.Program{Language: lang, Source: sub.SourceCode}
	if lang.Compiled() {
		fileID, err := p.compiler.Compile(ctx, lang, sub.SourceCode)
		if err != nil {
			return failure(err)
		}
		user.FileID = fileID
		user.Source = ""
		defer func() {
			// Artifact cleanup must survive whatever happened above; a
			// fresh context lets it run even after cancellation.
			if err := p.runner.DeleteFile(context.WithoutCancel(ctx), fileID); err != nil {
				logger.Warn(ctx, "artifact cleanup failed",
					zap.String("submission_id", sub.SubmissionID),
					zap.String("artifact", fileID), zap.Error(err))
			}
		}()
	}

	var aux *compile.Program
	if problem.HasAuxProgram() {
		prog, err := p.auxCache.EnsureReady(ctx, problem)
		if err != nil {
			return failure(err)
		}
		aux = prog
	}

	dataDir, err := p.data.EnsureLocal(ctx, problem.ID, problem.CaseVersion)
	if err != nil {
		return failure(err)
	}
	if len(problem.Cases) == 0 {
		return failure(appErr.Newf(appErr.TestDataMissing, "problem %d has no test cases", problem.ID))
	}

	report(model.StatusJudging)

	caseRunner, err := run.NewCaseRunner(p.runner, problem.JudgeMode)
	if err != nil {
		return failure(err)
	}

	results := make([]model.CaseResult, 0, len(problem.Cases))
	for _, pc := range problem.Cases {
		spec := &run.CaseSpec{
			User:          user,
			Aux:           aux,
			TimeLimitMs:   problem.TimeLimitMs,
			MemoryLimitMB: problem.MemoryLimitMB,
			Case:          pc,
			InputPath:     testdata.CasePath(dataDir, pc.InputName),
			OutputPath:    testdata.CasePath(dataDir, pc.OutputName),
		}
		result, err := caseRunner.RunCase(ctx, spec)
		if err != nil {
			return failure(err)
		}
		results = append(results, *result)
	}

	return p.aggregator.Aggregate(results, problem.Difficulty, problem.TotalPossibleScore())
}

// failure maps a pipeline error onto a terminal outcome.
func failure(err error) *model.SubmissionOutcome {
	outcome := &model.SubmissionOutcome{
		ErrMsg: textutil.Truncate(appErr.GetError(err).Message, textutil.DefaultMaxCaptured),
	}
	switch appErr.GetCode(err) {
	case appErr.CompileFailed:
		outcome.Status = model.StatusCompileError
	case appErr.LanguageNotSupported, appErr.ValidationFailed, appErr.SubmitFailed:
		outcome.Status = model.StatusSubmittedFailed
	default:
		outcome.Status = model.StatusSystemError
	}
	return outcome
}
