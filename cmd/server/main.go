package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"mailsync/internal/config"
	"mailsync/internal/extract"
	"mailsync/internal/handler"
	"mailsync/internal/httpserver"
	"mailsync/internal/mailbox"
	"mailsync/internal/repository"
	"mailsync/internal/sync"
	"mailsync/pkg/db"
	"mailsync/pkg/logger"
	"mailsync/pkg/mq"
	"mailsync/pkg/outbox"
	"mailsync/pkg/redis"
	"mailsync/pkg/util"
)

func main() {
	cfg := config.Load()

	logger := logger.NewLogger()
	defer logger.Sync()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis (optional; the once-guard fails open without it)
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// Init RabbitMQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatalf("failed to init publisher: %v", err)
	}
	defer publisher.Close()

	// Outbox: domain events are enqueued in Postgres and drained into
	// the MQ by the dispatcher.
	outboxRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger).
		WithMaxRetries(5).
		WithBatchSize(100)

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	defer stopDispatcher()
	go dispatcher.Start(dispatcherCtx)

	// Init repositories
	leadRepo := repository.NewLeadRepository(dbConn)
	conversationRepo := repository.NewConversationRepository(dbConn)
	messageRepo := repository.NewMessageRepository(dbConn)
	registryRepo := repository.NewSyncRegistryRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn)
	teamMemberRepo := repository.NewTeamMemberRepository(dbConn)

	// Init engine pieces
	engineCfg := sync.ConfigFrom(cfg.Sync, cfg.Mailbox)
	imapClient := mailbox.NewIMAPClient(cfg.Mailbox, logger)
	extractor := extract.NewExtractor()
	detector := sync.NewDuplicateDetector(messageRepo, sync.DedupConfigFrom(cfg.Sync), logger)
	threads := sync.NewThreadResolver(imapClient, engineCfg.ThreadLookback, engineCfg.ThreadFetchLimit, logger)
	deduper := util.NewDeduper(rdb, engineCfg.BatchBudget, logger)

	orchestrator := sync.NewOrchestrator(
		leadRepo,
		conversationRepo,
		messageRepo,
		registryRepo,
		taskRepo,
		teamMemberRepo,
		imapClient,
		extractor,
		detector,
		threads,
		deduper,
		outboxRepo,
		engineCfg,
		logger,
	)

	// Handlers and router
	syncHandler := handler.NewSyncHandler(orchestrator)
	authHandler := handler.NewAuthHandler(teamMemberRepo, cfg.JWT.Secret, logger)
	router := httpserver.NewRouter(syncHandler, authHandler, dbConn, publisher, cfg.JWT.Secret)

	logger.Info("Starting email sync service", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatalf("server start failed: %v", err)
	}
}
