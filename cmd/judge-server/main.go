package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vjudge/internal/common/cache"
	"vjudge/internal/common/db"
	"vjudge/internal/common/mq"
	"vjudge/internal/common/storage"
	"vjudge/internal/judge/compile"
	"vjudge/internal/judge/controller"
	"vjudge/internal/judge/dispatch"
	"vjudge/internal/judge/model"
	"vjudge/internal/judge/pipeline"
	"vjudge/internal/judge/repository"
	"vjudge/internal/judge/sandbox"
	"vjudge/internal/judge/service"
	"vjudge/internal/judge/testdata"
	"vjudge/pkg/utils/logger"
)

const defaultConfigPath = "configs/judge_server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	mysqlDB, err := db.NewMySQL(&cfg.MySQL)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCache(&cfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		logger.Error(ctx, "init minio failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(cfg.Kafka)
	if err != nil {
		logger.Error(ctx, "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	serverRepo := repository.NewJudgeServerRepository(mysqlDB)
	accountRepo := repository.NewRemoteAccountRepository(mysqlDB)
	submissionRepo := repository.NewSubmissionRepository(mysqlDB)
	problemRepo := repository.NewProblemRepository(mysqlDB)
	caseRepo := repository.NewJudgeCaseRepository(mysqlDB)
	statusCache := repository.NewStatusCache(redisCache)

	if err := serverRepo.Upsert(ctx, &model.JudgeServer{
		Name:          cfg.Server.Name,
		URL:           cfg.Server.PublicURL,
		MaxTaskNumber: cfg.Server.MaxTasks,
		IsRemote:      cfg.Server.Remote,
	}); err != nil {
		logger.Error(ctx, "register judge server failed", zap.Error(err))
		return
	}

	health := dispatch.NewHealthSource(redisCache)
	allocator := dispatch.NewAllocator(health, serverRepo, accountRepo)

	runner := sandbox.NewClient(cfg.Sandbox.URL, cfg.Sandbox.Timeout)
	compiler := compile.NewCompiler(runner)
	auxCache := compile.NewAuxCache(cfg.Data.AuxDir, compiler)
	dataCache := testdata.NewCache(cfg.Data.TestDataDir, cfg.MinIO.Bucket, objStorage)
	judgePipeline := pipeline.New(runner, compiler, auxCache, dataCache)

	judgeSvc := service.NewJudgeService(cfg.Judge, allocator, judgePipeline, nil,
		submissionRepo, problemRepo, caseRepo, statusCache, mqClient)

	if err := judgeSvc.Register(ctx, mqClient); err != nil {
		logger.Error(ctx, "subscribe kafka failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
		return
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go health.HeartbeatLoop(heartbeatCtx, cfg.Server.PublicURL, cfg.Server.HeartbeatInterval)

	httpServer := buildHTTPServer(statusCache, submissionRepo)
	listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge server started",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("public_url", cfg.Server.PublicURL))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	stopHeartbeat()
	shutdown, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdown); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
}

func buildHTTPServer(statusCache *repository.StatusCache, submissionRepo *repository.SubmissionRepository) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())

	controller.NewJudgeController(statusCache, submissionRepo).RegisterRoutes(router)

	return &http.Server{Handler: router}
}
