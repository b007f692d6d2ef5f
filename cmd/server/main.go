// Package main 是应用程序的入口点。
package main

import (
	"context"
	"figmant-go/internal/config"
	"figmant-go/internal/handler"
	"figmant-go/internal/middleware"
	"figmant-go/internal/model"
	"figmant-go/internal/pipeline"
	"figmant-go/internal/repository"
	"figmant-go/internal/service"
	"figmant-go/pkg/analysis"
	"figmant-go/pkg/database"
	"figmant-go/pkg/es"
	"figmant-go/pkg/kafka"
	"figmant-go/pkg/log"
	"figmant-go/pkg/storage"
	"figmant-go/pkg/token"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、ES 与 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 同步表结构
	if err := database.DB.AutoMigrate(
		&model.UploadRecord{},
		&model.BatchAnalysis{},
		&model.BatchAnalysisVersion{},
		&model.FigmantTemplate{},
	); err != nil {
		log.Fatalf("数据库表结构同步失败: %v", err)
	}

	// 后台探测对象存储可用性，处理链按探测结果做就绪门控
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	go storage.StartProber(rootCtx, cfg.MinIO)

	// 4. 初始化 Repository
	uploadRepo := repository.NewUploadRepository(database.DB)
	batchRepo := repository.NewBatchRepository(database.DB)
	transcriptRepo := repository.NewTranscriptRepository(database.RDB)
	templateRepo := repository.NewTemplateRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	analysisClient := analysis.NewClient(cfg.Analysis)
	statusStore := pipeline.NewStatusStore()

	attachmentService := service.NewAttachmentService(statusStore, uploadRepo, cfg.MinIO)
	chatService := service.NewChatService(statusStore, transcriptRepo, analysisClient, cfg.Elasticsearch, cfg.Analysis)
	batchService := service.NewBatchService(batchRepo, uploadRepo, analysisClient, cfg.Elasticsearch, cfg.Analysis)
	searchService := service.NewSearchService(cfg.Elasticsearch)
	templateService := service.NewTemplateService(templateRepo)

	// 6. 初始化附件处理管道 (Processor)
	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewValidator(cfg.Pipeline),
		pipeline.NewResizer(cfg.Pipeline),
		pipeline.NewUploader(cfg.MinIO),
		statusStore,
		pipeline.Options{
			MaxRetries:       cfg.Pipeline.MaxRetries,
			BackoffUnit:      time.Duration(cfg.Pipeline.BackoffMillis) * time.Millisecond,
			ProcessTimeout:   time.Duration(cfg.Pipeline.ProcessTimeoutSeconds) * time.Second,
			StorageWaitDelay: time.Duration(cfg.Pipeline.StorageWaitDelaySeconds) * time.Second,
			StorageWaitMax:   cfg.Pipeline.StorageWaitMax,
			StorageReady:     storage.IsReady,
		},
	)
	processor := pipeline.NewProcessor(orchestrator, uploadRepo, statusStore, cfg.MinIO, cfg.Pipeline)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7.1 幂等写入内置分析模板
	if err := templateService.SeedDefaults(); err != nil {
		log.Warnf("内置模板初始化失败: %v", err)
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Attachment 路由组，需要认证
		attachments := apiV1.Group("/attachments")
		attachments.Use(middleware.AuthMiddleware(jwtManager))
		{
			attachmentHandler := handler.NewAttachmentHandler(attachmentService)
			attachments.POST("/upload", attachmentHandler.Upload)
			attachments.POST("/url", attachmentHandler.AddURL)
			attachments.GET("", attachmentHandler.List)
			attachments.DELETE("/:id", attachmentHandler.Remove)
			attachments.POST("/:id/retry", attachmentHandler.Retry)
			attachments.GET("/supported-types", attachmentHandler.SupportedTypes)
		}

		// Chat 路由组，需要认证
		chat := apiV1.Group("/chat")
		chat.Use(middleware.AuthMiddleware(jwtManager))
		{
			chatHandler := handler.NewChatHandler(chatService)
			chat.POST("/messages", chatHandler.SendMessage)
			chat.GET("/can-send", chatHandler.CanSend)
			chat.GET("/transcript", chatHandler.GetTranscript)
			chat.GET("/debug/last-analysis", chatHandler.GetLastAnalysisDebug)
		}

		// Batch 路由组，需要认证
		batches := apiV1.Group("/batches")
		batches.Use(middleware.AuthMiddleware(jwtManager))
		{
			batchHandler := handler.NewBatchHandler(batchService)
			batches.POST("", batchHandler.Create)
			batches.GET("", batchHandler.List)
			batches.GET("/:batchId", batchHandler.Get)
			batches.POST("/:batchId/analyze", batchHandler.Analyze)
			batches.POST("/:batchId/modify", batchHandler.Modify)
			batches.GET("/:batchId/versions", batchHandler.ListVersions)
		}

		// Search 路由组，需要认证
		search := apiV1.Group("/search")
		search.Use(middleware.AuthMiddleware(jwtManager))
		{
			search.GET("/insights", handler.NewSearchHandler(searchService).Search)
		}

		// Template 路由组，需要认证
		templates := apiV1.Group("/templates")
		templates.Use(middleware.AuthMiddleware(jwtManager))
		{
			templateHandler := handler.NewTemplateHandler(templateService)
			templates.GET("", templateHandler.List)
			templates.GET("/:name", templateHandler.Get)
		}
	}

	// 附件状态推送 (WebSocket)，token 通过路径参数传递
	r.GET("/status/:token", handler.NewStatusHandler(statusStore, jwtManager).Stream)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
