package run

import (
	"context"
	"os"
	"strings"

	"vjudge/internal/judge/model"
	"vjudge/internal/judge/sandbox"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/textutil"
)

// defaultStrategy compares the program's stdout against the expected output
// file, ignoring trailing whitespace on each line and trailing blank lines.
type defaultStrategy struct{}

func (s *defaultStrategy) Judge(ctx context.Context, runner sandbox.Runner, spec *CaseSpec) (*model.CaseResult, error) {
	results, err := runner.Run(ctx, &sandbox.Request{
		Cmd: []sandbox.Cmd{userCmd(spec, &sandbox.CmdFile{Src: &spec.InputPath})},
	})
	if err != nil {
		return nil, err
	}
	res := results[0]

	status, ran := classify(&res)
	if !ran {
		return failedResult(&res, status), nil
	}

	expected, err := os.ReadFile(spec.OutputPath)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.TestDataMissing, "read expected output %s", spec.OutputPath)
	}

	result := &model.CaseResult{
		TimeMs:   res.TimeMs(),
		MemoryKB: res.MemoryKB(),
		Output:   capturedOutput(&res),
	}
	if OutputsMatch(string(expected), res.Files["stdout"]) {
		result.Status = model.StatusAccepted
		result.Score = spec.Case.Score
		result.Percentage = 1
	} else {
		result.Status = model.StatusWrongAnswer
	}
	return result, nil
}

// OutputsMatch compares judge output with user output under the usual OI
// relaxation: trailing whitespace on each line and trailing newlines do not
// count.
func OutputsMatch(expected, actual string) bool {
	return normalize(expected) == normalize(actual)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n")
}

// capturedOutput merges the program's streams, bounded so pathological
// output cannot blow up result rows.
func capturedOutput(res *sandbox.Result) string {
	return textutil.MergeNonEmpty(textutil.DefaultMaxCaptured,
		res.Files["stdout"], res.Files["stderr"], res.Error)
}
