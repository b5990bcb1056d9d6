package main

import (
	"log"

	"github.com/AdairStone/rchat/internal/config"
	"github.com/AdairStone/rchat/internal/counter"
	"github.com/AdairStone/rchat/internal/database"
	"github.com/AdairStone/rchat/internal/handlers"
	"github.com/AdairStone/rchat/internal/middleware"
	"github.com/AdairStone/rchat/internal/services"
	"github.com/AdairStone/rchat/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           rchat relay API
// @version         1.0
// @description     Live-chat relay between website visitors and support operators
// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter "Bearer {token}"

func main() {
	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	redisClient := counter.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	defer redisClient.Close()
	unread := counter.NewUnread(redisClient)

	authService := services.NewAuthService(db, cfg.JWTSecret)
	chatService := services.NewChatService(db, unread)
	notifyService := services.NewNotifyService(chatService, unread)

	hub := ws.NewHub(chatService, notifyService, unread)

	authHandler := handlers.NewAuthHandler(authService)
	siteHandler := handlers.NewSiteHandler(chatService, cfg.ScriptHome)
	uploadHandler := handlers.NewUploadHandler(db, cfg.UploadDir)
	relayHandler := handlers.NewRelayHandler(hub, chatService, authService)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Static("/uploads", cfg.UploadDir)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/ws/chat", relayHandler.HandleChat)
	r.GET("/load/load.js", siteHandler.LoadScript)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		service := api.Group("/service")
		service.Use(middleware.JWTAuth(authService))
		{
			service.POST("/config-site", siteHandler.ConfigSite)
			service.PUT("/save-site", siteHandler.SaveSite)
			service.GET("/list-rooms", siteHandler.ListRooms)
			service.GET("/list-chatmessage", siteHandler.ListMessages)
		}

		file := api.Group("/file")
		file.Use(middleware.JWTAuth(authService))
		{
			file.POST("/upload", uploadHandler.Upload)
		}
	}

	log.Printf("server starting on :%s", cfg.ServerPort)
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
