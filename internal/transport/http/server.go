package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aken1023/llamaindex-faiss-system1/internal/ai"
	appsvc "github.com/aken1023/llamaindex-faiss-system1/internal/app"
	"github.com/aken1023/llamaindex-faiss-system1/internal/bootstrap"
	"github.com/aken1023/llamaindex-faiss-system1/internal/cache"
	"github.com/aken1023/llamaindex-faiss-system1/internal/embedding"
	"github.com/aken1023/llamaindex-faiss-system1/internal/platform/rabbitmq"
	"github.com/aken1023/llamaindex-faiss-system1/internal/repository"
	"github.com/aken1023/llamaindex-faiss-system1/internal/transport/http/handler"
	"github.com/aken1023/llamaindex-faiss-system1/internal/transport/http/middleware"
	"github.com/aken1023/llamaindex-faiss-system1/internal/vectorindex"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	docRepo := repository.NewDocumentRepository(app.MySQL)
	modelRepo := repository.NewAIModelRepository(app.MySQL)
	prefRepo := repository.NewPreferenceRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	modelService := appsvc.NewModelService(modelRepo, prefRepo)

	embeddingCache := cache.NewEmbeddingCache(
		app.Redis,
		time.Duration(app.Config.Redis.EmbeddingTTLSeconds)*time.Second,
	)
	embedder := embedding.NewClient(app.Config.Embedding, embeddingCache)
	store := vectorindex.NewStore(app.Config.Storage.IndexDir, embedder)
	aiRouter := ai.NewRouter(modelService, app.Config.Generation)
	events := rabbitmq.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.IndexEventQueue)

	knowledgeService := appsvc.NewKnowledgeService(
		app.Config.Storage.DocumentsDir,
		store,
		embedder,
		aiRouter,
		events,
		docRepo,
	)

	authHandler := handler.NewAuthHandler(authService)
	documentHandler := handler.NewDocumentHandler(knowledgeService, app.Config.Storage.MaxUploadSize)
	queryHandler := handler.NewQueryHandler(knowledgeService)
	modelHandler := handler.NewModelHandler(modelService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	kbGroup := v1.Group("/knowledge")
	kbGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	kbGroup.POST("/documents", documentHandler.Upload)
	kbGroup.GET("/documents", documentHandler.List)
	kbGroup.DELETE("/documents/:filename", documentHandler.Delete)
	kbGroup.DELETE("/documents", documentHandler.Purge)
	kbGroup.POST("/query", queryHandler.Ask)
	kbGroup.POST("/search", queryHandler.Search)
	kbGroup.GET("/capabilities", queryHandler.Capabilities)

	modelGroup := v1.Group("/models")
	modelGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	modelGroup.GET("", modelHandler.List)
	modelGroup.POST("", modelHandler.Create)
	modelGroup.DELETE("/:id", modelHandler.Delete)
	modelGroup.GET("/preferences", modelHandler.ListPreferences)
	modelGroup.GET("/preferences/default", modelHandler.GetDefaultPreference)
	modelGroup.POST("/preferences", modelHandler.SetPreference)
	modelGroup.DELETE("/preferences/:id", modelHandler.DeletePreference)

	return router
}
