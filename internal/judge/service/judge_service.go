// Package service consumes dispatch messages and drives submissions through
// allocation, judging and result publication.
package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"vjudge/internal/common/mq"
	"vjudge/internal/judge/model"
	"vjudge/internal/judge/pipeline"
	"vjudge/internal/judge/repository"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/logger"
)

// SubmissionStore is the persistence surface the service needs for
// submissions.
type SubmissionStore interface {
	UpdateStatus(ctx context.Context, submissionID string, status model.Status, judger string) error
	SaveOutcome(ctx context.Context, submissionID string, outcome *model.SubmissionOutcome) error
}

// ProblemStore loads problems.
type ProblemStore interface {
	GetByID(ctx context.Context, problemID int64) (*model.Problem, error)
}

// CaseStore persists per-case results.
type CaseStore interface {
	ReplaceForSubmission(ctx context.Context, sub *model.Submission, results []model.CaseResult) error
}

// StatusReporter mirrors live status for pollers.
type StatusReporter interface {
	Set(ctx context.Context, status *repository.SubmissionStatus) error
}

// Judger runs one submission to a terminal outcome.
type Judger interface {
	Judge(ctx context.Context, sub *model.Submission, problem *model.Problem, progress pipeline.ProgressFunc) *model.SubmissionOutcome
}

// RemoteSubmitter forwards a submission to a remote online judge using a
// claimed account and reports the remote verdict.
type RemoteSubmitter interface {
	Submit(ctx context.Context, sub *model.Submission, account *model.RemoteAccount) (*model.SubmissionOutcome, error)
}

// Allocator is the slice of dispatch.Allocator the service uses.
type Allocator interface {
	ChooseJudgeServer(ctx context.Context, isRemote bool) (*model.JudgeServer, error)
	ReleaseJudgeServer(ctx context.Context, url string) error
	ChooseRemoteAccount(ctx context.Context, oj string) (*model.RemoteAccount, error)
	ReleaseRemoteAccount(ctx context.Context, id int64) error
}

// Config tunes the judging consumer.
type Config struct {
	JudgeTopic    string        `yaml:"judge_topic"`
	VerdictTopic  string        `yaml:"verdict_topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	Concurrency   int           `yaml:"concurrency"`
	AllocRetry    time.Duration `yaml:"alloc_retry"`
	AllocMaxWait  time.Duration `yaml:"alloc_max_wait"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.JudgeTopic == "" {
		c.JudgeTopic = "judge-tasks"
	}
	if c.VerdictTopic == "" {
		c.VerdictTopic = "judge-verdicts"
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "judge-server"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.AllocRetry <= 0 {
		c.AllocRetry = 2 * time.Second
	}
	if c.AllocMaxWait <= 0 {
		c.AllocMaxWait = 2 * time.Minute
	}
}

// JudgeService wires the dispatch consumer to the judging pipeline.
type JudgeService struct {
	cfg Config

	alloc       Allocator
	judger      Judger
	remote      RemoteSubmitter
	submissions SubmissionStore
	problems    ProblemStore
	cases       CaseStore
	status      StatusReporter
	producer    mq.Producer
}

func NewJudgeService(cfg Config, alloc Allocator, judger Judger, remote RemoteSubmitter,
	submissions SubmissionStore, problems ProblemStore, cases CaseStore,
	status StatusReporter, producer mq.Producer) *JudgeService {
	cfg.SetDefaults()
	return &JudgeService{
		cfg:         cfg,
		alloc:       alloc,
		judger:      judger,
		remote:      remote,
		submissions: submissions,
		problems:    problems,
		cases:       cases,
		status:      status,
		producer:    producer,
	}
}

// Register subscribes the service on the dispatch topic.
func (s *JudgeService) Register(ctx context.Context, consumer mq.Consumer) error {
	return consumer.Subscribe(ctx, s.cfg.JudgeTopic, s.HandleTask, &mq.SubscribeOptions{
		ConsumerGroup: s.cfg.ConsumerGroup,
		Concurrency:   s.cfg.Concurrency,
	})
}

// HandleTask processes one dispatch message. A nil return commits the
// message; errors leave it uncommitted for redelivery, which is only done
// for transient conditions (nothing claimed yet, infrastructure down).
func (s *JudgeService) HandleTask(ctx context.Context, msg *mq.Message) error {
	var task model.JudgeTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		// A malformed message never becomes valid; drop it.
		logger.Error(ctx, "dropping malformed judge task",
			zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	ctx = context.WithValue(ctx, "submission_id", task.SubmissionID)

	sub := &model.Submission{
		SubmissionID: task.SubmissionID,
		ProblemID:    task.ProblemID,
		UserID:       task.UserID,
		Language:     task.Language,
		SourceCode:   task.SourceCode,
		IsRemote:     task.IsRemote,
		RemoteOj:     task.RemoteOj,
	}

	problem, err := s.problems.GetByID(ctx, task.ProblemID)
	if err != nil {
		if appErr.GetCode(err) == appErr.ProblemNotFound {
			s.finish(ctx, sub, &model.SubmissionOutcome{
				Status: model.StatusSubmittedFailed,
				ErrMsg: err.Error(),
			})
			return nil
		}
		return err
	}

	server, err := s.claimServer(ctx, task.IsRemote)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if err := s.alloc.ReleaseJudgeServer(releaseCtx, server.URL); err != nil {
			logger.Error(ctx, "judge server release failed",
				zap.String("url", server.URL), zap.Error(err))
		}
	}()
	sub.Judger = server.URL

	var outcome *model.SubmissionOutcome
	if sub.IsRemote {
		outcome = s.judgeRemote(ctx, sub)
	} else {
		outcome = s.judger.Judge(ctx, sub, problem, func(ctx context.Context, status model.Status) {
			s.reportProgress(ctx, sub, status)
		})
	}

	s.finish(ctx, sub, outcome)
	return nil
}

// claimServer retries until a server slot is claimed or the wait budget
// runs out. Exhaustion after the budget bounces the message back to the
// broker rather than failing the submission.
func (s *JudgeService) claimServer(ctx context.Context, isRemote bool) (*model.JudgeServer, error) {
	deadline := time.Now().Add(s.cfg.AllocMaxWait)
	for {
		server, err := s.alloc.ChooseJudgeServer(ctx, isRemote)
		if err != nil {
			return nil, err
		}
		if server != nil {
			return server, nil
		}
		if time.Now().After(deadline) {
			return nil, appErr.New(appErr.NoServerAvailable)
		}
		select {
		case <-ctx.Done():
			return nil, appErr.Wrapf(ctx.Err(), appErr.DispatchError, "allocation interrupted")
		case <-time.After(s.cfg.AllocRetry):
		}
	}
}

// judgeRemote claims an account and forwards the submission. Allocation
// exhaustion and forwarding failures are terminal here: the slot is already
// claimed, so the caller has committed to producing a verdict.
func (s *JudgeService) judgeRemote(ctx context.Context, sub *model.Submission) *model.SubmissionOutcome {
	if s.remote == nil {
		return &model.SubmissionOutcome{
			Status: model.StatusSystemError,
			ErrMsg: appErr.RemoteJudgeError.Message(),
		}
	}

	account, err := s.claimAccount(ctx, sub.RemoteOj)
	if err != nil {
		return &model.SubmissionOutcome{
			Status: model.StatusSubmittedFailed,
			ErrMsg: err.Error(),
		}
	}
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if err := s.alloc.ReleaseRemoteAccount(releaseCtx, account.ID); err != nil {
			logger.Error(ctx, "remote account release failed",
				zap.Int64("account_id", account.ID), zap.Error(err))
		}
	}()

	s.reportProgress(ctx, sub, model.StatusJudging)
	outcome, err := s.remote.Submit(ctx, sub, account)
	if err != nil {
		return &model.SubmissionOutcome{
			Status: model.StatusSystemError,
			ErrMsg: err.Error(),
		}
	}
	return outcome
}

func (s *JudgeService) claimAccount(ctx context.Context, oj string) (*model.RemoteAccount, error) {
	deadline := time.Now().Add(s.cfg.AllocMaxWait)
	for {
		account, err := s.alloc.ChooseRemoteAccount(ctx, oj)
		if err != nil {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
		if time.Now().After(deadline) {
			return nil, appErr.New(appErr.NoAccountAvailable)
		}
		select {
		case <-ctx.Done():
			return nil, appErr.Wrapf(ctx.Err(), appErr.DispatchError, "account allocation interrupted")
		case <-time.After(s.cfg.AllocRetry):
		}
	}
}

// reportProgress persists a live status transition. Failures are logged and
// swallowed; judging continues regardless.
func (s *JudgeService) reportProgress(ctx context.Context, sub *model.Submission, status model.Status) {
	if err := s.submissions.UpdateStatus(ctx, sub.SubmissionID, status, sub.Judger); err != nil {
		logger.Warn(ctx, "status update failed", zap.Error(err))
	}
	if err := s.status.Set(ctx, &repository.SubmissionStatus{
		SubmissionID: sub.SubmissionID,
		Status:       status,
	}); err != nil {
		logger.Warn(ctx, "status cache update failed", zap.Error(err))
	}
}

// finish persists the terminal outcome and publishes the verdict event.
// Persistence failures are logged but do not resurrect the message; the
// verdict event is the contract with downstream consumers.
func (s *JudgeService) finish(ctx context.Context, sub *model.Submission, outcome *model.SubmissionOutcome) {
	ctx = context.WithoutCancel(ctx)

	if err := s.submissions.SaveOutcome(ctx, sub.SubmissionID, outcome); err != nil {
		logger.Error(ctx, "outcome persistence failed", zap.Error(err))
	}
	if len(outcome.Cases) > 0 {
		if err := s.cases.ReplaceForSubmission(ctx, sub, outcome.Cases); err != nil {
			logger.Error(ctx, "case batch persistence failed", zap.Error(err))
		}
	}
	if err := s.status.Set(ctx, &repository.SubmissionStatus{
		SubmissionID: sub.SubmissionID,
		Status:       outcome.Status,
		Score:        outcome.Score,
		TimeMs:       outcome.TimeMs,
		MemoryKB:     outcome.MemoryKB,
		ErrMsg:       outcome.ErrMsg,
	}); err != nil {
		logger.Warn(ctx, "terminal status cache update failed", zap.Error(err))
	}

	event := model.VerdictEvent{
		SubmissionID: sub.SubmissionID,
		ProblemID:    sub.ProblemID,
		UserID:       sub.UserID,
		Status:       int(outcome.Status),
		Score:        outcome.Score,
		RankScore:    outcome.RankScore,
		TimeMs:       outcome.TimeMs,
		MemoryKB:     outcome.MemoryKB,
		ErrMsg:       outcome.ErrMsg,
		JudgedAt:     time.Now(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "verdict event marshal failed", zap.Error(err))
		return
	}
	if err := s.producer.Publish(ctx, s.cfg.VerdictTopic, mq.NewMessage(body)); err != nil {
		logger.Error(ctx, "verdict event publish failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "submission judged",
		zap.String("status", outcome.Status.String()),
		zap.Int("score", outcome.Score),
		zap.String("judger", sub.Judger))
}
