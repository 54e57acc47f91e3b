// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"farm-advisor-go/internal/config"
	"farm-advisor-go/internal/handler"
	"farm-advisor-go/internal/knowledge"
	"farm-advisor-go/internal/matcher"
	"farm-advisor-go/internal/middleware"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/repository"
	"farm-advisor-go/internal/safety"
	"farm-advisor-go/internal/service"
	"farm-advisor-go/pkg/database"
	"farm-advisor-go/pkg/es"
	"farm-advisor-go/pkg/hash"
	"farm-advisor-go/pkg/kafka"
	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/storage"
	"farm-advisor-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 实例 ID 用于 Kafka 消费组与跳过自己发出的重载广播
	instanceID := uuid.NewString()
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL, &model.User{}, &model.ChatHistory{})
	database.InitRedis(cfg.Database.Redis)
	defer database.CloseRedis()

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	historyRepo := repository.NewChatHistoryRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	tokenBlacklist := repository.NewTokenBlacklist(database.RDB)
	seedAdmin(userRepository, cfg.Admin)

	// 5. 可选组件：对象存储、搜索、消息广播
	var images repository.LeafImageRepository
	if cfg.MinIO.Enabled {
		if err := storage.InitMinIO(cfg.MinIO); err != nil {
			log.Errorf("MinIO 初始化失败，叶片图片不会归档: %v", err)
		} else {
			images = repository.NewLeafImageRepository(storage.MinioClient, cfg.MinIO.BucketName)
		}
	}

	var indexer service.ExchangeIndexer
	var searchService service.SearchService
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			// 搜索不是核心功能，初始化失败时降级运行
			log.Errorf("es 初始化失败，聊天记录搜索不可用: %v", err)
		} else {
			indexer = es.ChatIndexer{Client: es.ESClient, IndexName: cfg.Elasticsearch.IndexName}
			searchService = service.NewSearchService(es.ESClient, cfg.Elasticsearch.IndexName)
		}
	}

	var publisher service.ReloadPublisher
	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
		defer kafka.CloseProducer()
		publisher = kafka.Publisher{}
	}

	// 6. 知识库
	kbStore := knowledge.NewStore(cfg.Knowledge.Path)
	if cfg.Knowledge.Watch {
		watcher, err := knowledge.NewWatcher(kbStore)
		if err != nil {
			log.Errorf("创建知识库文件监听失败: %v", err)
		} else if err := watcher.Start(rootCtx); err != nil {
			log.Errorf("启动知识库文件监听失败: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	// 7. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	userService := service.NewUserService(userRepository, tokenBlacklist, jwtManager)
	conversationService := service.NewConversationService(conversationRepo)
	knowledgeService := service.NewKnowledgeService(kbStore, publisher, instanceID)
	adminService := service.NewAdminService(userRepository, historyRepo, conversationRepo, searchService, images)
	chatService := service.NewChatService(matcher.New(kbStore), safety.NewFilter(cfg.Safety.ExtraTerms...), nil)
	recorder := service.NewChatRecorder(historyRepo, conversationService, indexer, images)

	// 8. 启动后台 Kafka 消费者
	if cfg.Kafka.Enabled {
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.GroupPrefix, instanceID)
		go kafka.StartConsumer(rootCtx, cfg.Kafka, groupID, knowledgeService)
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	chatHandler := handler.NewChatHandler(chatService, recorder, userService, jwtManager, cfg.Server.MaxBodyBytes)
	adminHandler := handler.NewAdminHandler(adminService, knowledgeService)

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", authHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.PUT("/profile", userHandler.UpdateProfile)
				authed.POST("/logout", authHandler.Logout)
				authed.GET("/conversation", handler.NewConversationHandler(conversationService).GetConversations)
			}
		}

		// Chat 路由：匿名用户也可以提问
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.POST("", middleware.OptionalAuthMiddleware(jwtManager, userService), chatHandler.Chat)
			chatGroup.GET("/websocket-token", middleware.AuthMiddleware(jwtManager, userService), chatHandler.GetWebsocketToken)
		}

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:userId/chats", adminHandler.ListUserChats)
			admin.GET("/chats", adminHandler.ListChats)
			admin.GET("/chats/search", adminHandler.SearchChats)
			admin.GET("/conversations", adminHandler.GetAllConversations)
			admin.GET("/leaf-images/*object", adminHandler.LeafImageURL)

			kb := admin.Group("/knowledge")
			{
				kb.GET("", adminHandler.GetKnowledge)
				kb.PUT("", adminHandler.UpdateKnowledge)
				kb.POST("/reload", adminHandler.ReloadKnowledge)
			}
		}
	}
	r.GET("/chat/:token", chatHandler.Handle)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "knowledgeEntries": kbStore.Snapshot().Len()})
	})

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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者与知识库监听
	cancelRoot()
	log.Info("服务已优雅关闭")
}

// seedAdmin 在配置了管理员账号且该账号不存在时创建它（幂等）。
func seedAdmin(userRepo repository.UserRepository, cfg config.AdminConfig) {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" || cfg.Password == "" {
		return
	}
	if _, err := userRepo.FindByEmail(email); err == nil {
		log.Infof("seedAdmin: 管理员 '%s' 已存在，跳过", email)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("seedAdmin: 查询管理员失败: %v", err)
		return
	}

	hashed, err := hash.HashPassword(cfg.Password)
	if err != nil {
		log.Errorf("seedAdmin: 密码加密失败: %v", err)
		return
	}
	admin := &model.User{
		Email:             email,
		Password:          hashed,
		Name:              "Administrator",
		Role:              model.RoleAdmin,
		PreferredLanguage: model.DefaultLanguage,
	}
	if err := userRepo.Create(admin); err != nil {
		log.Errorf("seedAdmin: 创建管理员失败: %v", err)
		return
	}
	log.Infof("seedAdmin: 已创建管理员 '%s'", email)
}
