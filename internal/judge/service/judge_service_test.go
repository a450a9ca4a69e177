package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"vjudge/internal/common/mq"
	"vjudge/internal/judge/model"
	"vjudge/internal/judge/pipeline"
	"vjudge/internal/judge/repository"
	appErr "vjudge/pkg/errors"
)

func notFoundErr() error {
	return appErr.Newf(appErr.ProblemNotFound, "problem 999")
}

type fakeAllocator struct {
	server   *model.JudgeServer
	account  *model.RemoteAccount
	claims   int
	released []string
	accRel   []int64
}

func (f *fakeAllocator) ChooseJudgeServer(context.Context, bool) (*model.JudgeServer, error) {
	f.claims++
	return f.server, nil
}

func (f *fakeAllocator) ReleaseJudgeServer(_ context.Context, url string) error {
	f.released = append(f.released, url)
	return nil
}

func (f *fakeAllocator) ChooseRemoteAccount(context.Context, string) (*model.RemoteAccount, error) {
	return f.account, nil
}

func (f *fakeAllocator) ReleaseRemoteAccount(_ context.Context, id int64) error {
	f.accRel = append(f.accRel, id)
	return nil
}

type fakeJudger struct {
	outcome *model.SubmissionOutcome
	judged  int
}

func (f *fakeJudger) Judge(ctx context.Context, _ *model.Submission, _ *model.Problem, progress pipeline.ProgressFunc) *model.SubmissionOutcome {
	f.judged++
	if progress != nil {
		progress(ctx, model.StatusCompiling)
		progress(ctx, model.StatusJudging)
	}
	return f.outcome
}

type fakeSubmissionStore struct {
	statuses []model.Status
	outcomes []*model.SubmissionOutcome
}

func (f *fakeSubmissionStore) UpdateStatus(_ context.Context, _ string, status model.Status, _ string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeSubmissionStore) SaveOutcome(_ context.Context, _ string, outcome *model.SubmissionOutcome) error {
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

type fakeProblemStore struct {
	problem *model.Problem
	err     error
}

func (f *fakeProblemStore) GetByID(context.Context, int64) (*model.Problem, error) {
	return f.problem, f.err
}

type fakeCaseStore struct {
	batches [][]model.CaseResult
}

func (f *fakeCaseStore) ReplaceForSubmission(_ context.Context, _ *model.Submission, results []model.CaseResult) error {
	f.batches = append(f.batches, results)
	return nil
}

type fakeStatusReporter struct {
	updates []*repository.SubmissionStatus
}

func (f *fakeStatusReporter) Set(_ context.Context, status *repository.SubmissionStatus) error {
	f.updates = append(f.updates, status)
	return nil
}

type fakeProducer struct {
	topics   []string
	messages []*mq.Message
}

func (f *fakeProducer) Publish(_ context.Context, topic string, msg *mq.Message) error {
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, msg)
	return nil
}

type fakeRemote struct {
	outcome  *model.SubmissionOutcome
	accounts []*model.RemoteAccount
}

func (f *fakeRemote) Submit(_ context.Context, _ *model.Submission, account *model.RemoteAccount) (*model.SubmissionOutcome, error) {
	f.accounts = append(f.accounts, account)
	return f.outcome, nil
}

type deps struct {
	alloc    *fakeAllocator
	judger   *fakeJudger
	remote   *fakeRemote
	subs     *fakeSubmissionStore
	problems *fakeProblemStore
	cases    *fakeCaseStore
	status   *fakeStatusReporter
	producer *fakeProducer
}

func newService(t *testing.T, d *deps) *JudgeService {
	t.Helper()
	cfg := Config{AllocRetry: time.Millisecond, AllocMaxWait: 10 * time.Millisecond}
	var remote RemoteSubmitter
	if d.remote != nil {
		remote = d.remote
	}
	return NewJudgeService(cfg, d.alloc, d.judger, remote,
		d.subs, d.problems, d.cases, d.status, d.producer)
}

func defaultDeps() *deps {
	return &deps{
		alloc: &fakeAllocator{server: &model.JudgeServer{ID: 1, URL: "http://j1:8080", MaxTaskNumber: 4}},
		judger: &fakeJudger{outcome: &model.SubmissionOutcome{
			Status: model.StatusAccepted,
			Score:  100,
			Cases:  []model.CaseResult{{CaseID: 1, Status: model.StatusAccepted, Score: 100}},
		}},
		subs:     &fakeSubmissionStore{},
		problems: &fakeProblemStore{problem: &model.Problem{ID: 1, JudgeMode: model.ModeDefault}},
		cases:    &fakeCaseStore{},
		status:   &fakeStatusReporter{},
		producer: &fakeProducer{},
	}
}

func taskMessage(t *testing.T, task model.JudgeTask) *mq.Message {
	t.Helper()
	body, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	return mq.NewMessage(body)
}

func TestHandleTaskHappyPath(t *testing.T) {
	d := defaultDeps()
	svc := newService(t, d)

	task := model.JudgeTask{SubmissionID: "sub-1", ProblemID: 1, Language: "C++", SourceCode: "int main(){}"}
	if err := svc.HandleTask(context.Background(), taskMessage(t, task)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if d.judger.judged != 1 {
		t.Fatalf("expected one judging run, got %d", d.judger.judged)
	}
	if len(d.alloc.released) != 1 || d.alloc.released[0] != "http://j1:8080" {
		t.Fatalf("server must be released exactly once, got %v", d.alloc.released)
	}
	if len(d.subs.outcomes) != 1 || d.subs.outcomes[0].Status != model.StatusAccepted {
		t.Fatalf("outcome not persisted: %+v", d.subs.outcomes)
	}
	if len(d.cases.batches) != 1 {
		t.Fatalf("case batch not persisted: %v", d.cases.batches)
	}
	if len(d.producer.topics) != 1 || d.producer.topics[0] != "judge-verdicts" {
		t.Fatalf("verdict not published: %v", d.producer.topics)
	}

	var event model.VerdictEvent
	if err := json.Unmarshal(d.producer.messages[0].Body, &event); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if event.SubmissionID != "sub-1" || event.Score != 100 {
		t.Fatalf("unexpected verdict event: %+v", event)
	}

	// Progress transitions persisted in order.
	want := []model.Status{model.StatusCompiling, model.StatusJudging}
	if len(d.subs.statuses) != len(want) {
		t.Fatalf("unexpected status updates: %v", d.subs.statuses)
	}
	for i, s := range want {
		if d.subs.statuses[i] != s {
			t.Fatalf("status %d: expected %v, got %v", i, s, d.subs.statuses[i])
		}
	}
}

func TestHandleTaskMalformedMessageDropped(t *testing.T) {
	d := defaultDeps()
	svc := newService(t, d)

	if err := svc.HandleTask(context.Background(), mq.NewMessage([]byte("{not json"))); err != nil {
		t.Fatalf("malformed message must be committed, got %v", err)
	}
	if d.alloc.claims != 0 {
		t.Fatal("no allocation for malformed messages")
	}
}

func TestHandleTaskUnknownProblemFailsSubmission(t *testing.T) {
	d := defaultDeps()
	d.problems = &fakeProblemStore{err: notFoundErr()}
	svc := newService(t, d)

	task := model.JudgeTask{SubmissionID: "sub-1", ProblemID: 999}
	if err := svc.HandleTask(context.Background(), taskMessage(t, task)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if d.alloc.claims != 0 {
		t.Fatal("no server claim for unknown problems")
	}
	if len(d.subs.outcomes) != 1 || d.subs.outcomes[0].Status != model.StatusSubmittedFailed {
		t.Fatalf("expected SubmittedFailed outcome, got %+v", d.subs.outcomes)
	}
	if len(d.producer.topics) != 1 {
		t.Fatal("terminal verdict must still be published")
	}
}

func TestHandleTaskAllocationExhaustedRequeues(t *testing.T) {
	d := defaultDeps()
	d.alloc.server = nil
	svc := newService(t, d)

	task := model.JudgeTask{SubmissionID: "sub-1", ProblemID: 1}
	if err := svc.HandleTask(context.Background(), taskMessage(t, task)); err == nil {
		t.Fatal("expected error to trigger redelivery when nothing has capacity")
	}
	if d.alloc.claims < 2 {
		t.Fatalf("expected retries before giving up, got %d claims", d.alloc.claims)
	}
	if len(d.producer.topics) != 0 {
		t.Fatal("no verdict may be published for a requeued task")
	}
}

func TestHandleTaskRemoteSubmission(t *testing.T) {
	d := defaultDeps()
	d.alloc.server.IsRemote = true
	d.alloc.account = &model.RemoteAccount{ID: 5, Oj: model.RemoteOjCodeforces, Username: "cf_bot"}
	d.remote = &fakeRemote{outcome: &model.SubmissionOutcome{Status: model.StatusAccepted, Score: 100}}
	svc := newService(t, d)

	task := model.JudgeTask{SubmissionID: "sub-1", ProblemID: 1, IsRemote: true, RemoteOj: model.RemoteOjGym}
	if err := svc.HandleTask(context.Background(), taskMessage(t, task)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if d.judger.judged != 0 {
		t.Fatal("remote submissions must not run the local pipeline")
	}
	if len(d.remote.accounts) != 1 || d.remote.accounts[0].ID != 5 {
		t.Fatalf("remote submit not called with claimed account: %v", d.remote.accounts)
	}
	if len(d.alloc.accRel) != 1 || d.alloc.accRel[0] != 5 {
		t.Fatalf("account must be released exactly once, got %v", d.alloc.accRel)
	}
	if len(d.alloc.released) != 1 {
		t.Fatalf("server slot must also be released, got %v", d.alloc.released)
	}
}
