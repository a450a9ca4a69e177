package run

import (
	"context"
	"math"
	"strconv"
	"strings"

	"vjudge/internal/judge/model"
	"vjudge/internal/judge/sandbox"
	appErr "vjudge/pkg/errors"
)

// Special judge exit code protocol.
const (
	spjExitAccepted = 0
	spjExitWrong    = 1
	spjExitPartial  = 2
)

const (
	spjTimeLimitMs   = 10000
	spjMemoryLimitMB = 512
	spjFileMax       = 16 * 1024 * 1024
)

// spjStrategy runs the user program normally, then hands the case input,
// the user's output and the reference answer to the problem's checker. The
// checker's exit code decides the verdict; a partial verdict reads the
// awarded fraction from the checker's stdout.
type spjStrategy struct{}

func (s *spjStrategy) Judge(ctx context.Context, runner sandbox.Runner, spec *CaseSpec) (*model.CaseResult, error) {
	if spec.Aux == nil {
		return nil, appErr.New(appErr.AuxProgramMissing).WithMessage("special judge requires a checker program")
	}

	results, err := runner.Run(ctx, &sandbox.Request{
		Cmd: []sandbox.Cmd{userCmd(spec, &sandbox.CmdFile{Src: &spec.InputPath})},
	})
	if err != nil {
		return nil, err
	}
	userRes := results[0]

	status, ran := classify(&userRes)
	if !ran {
		return failedResult(&userRes, status), nil
	}

	checkRes, err := s.runChecker(ctx, runner, spec, userRes.Files["stdout"])
	if err != nil {
		return nil, err
	}

	result := &model.CaseResult{
		TimeMs:   userRes.TimeMs(),
		MemoryKB: userRes.MemoryKB(),
		Output:   capturedOutput(&userRes),
	}

	exit := checkRes.ExitStatus
	if checkRes.Status != sandbox.StatusAccepted && checkRes.Status != sandbox.StatusNonzeroExitStatus {
		return nil, appErr.Newf(appErr.SubmitFailed, "checker crashed: %s %s", checkRes.Status, checkRes.Error)
	}

	switch exit {
	case spjExitAccepted:
		result.Status = model.StatusAccepted
		result.Score = spec.Case.Score
		result.Percentage = 1
	case spjExitWrong:
		result.Status = model.StatusWrongAnswer
	case spjExitPartial:
		pct, err := parseFraction(checkRes.Files["stdout"])
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "checker reported partial verdict without a fraction")
		}
		result.Status = model.StatusPartialAccepted
		result.Percentage = pct
		result.Score = int(math.Floor(pct * float64(spec.Case.Score)))
	default:
		return nil, appErr.Newf(appErr.JudgeSystemError, "checker exited with unexpected code %d", exit)
	}
	return result, nil
}

func (s *spjStrategy) runChecker(ctx context.Context, runner sandbox.Runner, spec *CaseSpec, userOutput string) (*sandbox.Result, error) {
	aux := *spec.Aux

	copyIn := programCopyIn(aux)
	copyIn["input"] = sandbox.CmdFile{Src: &spec.InputPath}
	copyIn["user_output"] = sandbox.CmdFile{Content: &userOutput}
	copyIn["answer"] = sandbox.CmdFile{Src: &spec.OutputPath}

	args := append(append([]string{}, aux.Language.RunArgs...), "input", "user_output", "answer")

	results, err := runner.Run(ctx, &sandbox.Request{
		Cmd: []sandbox.Cmd{{
			Args: args,
			Env:  aux.Language.Env,
			Files: []*sandbox.CmdFile{
				{Content: sandbox.StrPtr("")},
				{Name: sandbox.StrPtr("stdout"), Max: sandbox.Int64Ptr(spjFileMax)},
				{Name: sandbox.StrPtr("stderr"), Max: sandbox.Int64Ptr(spjFileMax)},
			},
			CPULimit:    spjTimeLimitMs * 1e6,
			ClockLimit:  spjTimeLimitMs * clockFactor * 1e6,
			MemoryLimit: spjMemoryLimitMB * 1024 * 1024,
			ProcLimit:   runProcLimit,
			CopyIn:      copyIn,
			CopyOut:     []string{"stdout", "stderr"},
		}},
	})
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// parseFraction reads the awarded fraction from checker stdout, clamped to
// [0, 1].
func parseFraction(raw string) (float64, error) {
	pct, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	return pct, nil
}
