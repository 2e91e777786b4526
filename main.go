package main

import (
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/skycrate/api/database"
	"github.com/skycrate/api/handlers"
)

func main() {
	env := os.Getenv("SC_ENV")
	handlers.InitLogger(env != "production")
	handlers.ServerVersion = Version

	dataRoot := os.Getenv("DATA_ROOT")
	if dataRoot == "" {
		dataRoot = "/data"
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(handlers.RequestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{"*", "Authorization", "Content-Type"},
	}))

	// Database connection
	db, err := database.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// OTP challenge store and abuse guard
	otpStore := handlers.InitOTPStore()
	otpGuard := handlers.InitOTPGuard(otpStore)

	// Live change events
	hub := handlers.NewEventHub()

	// Handlers
	h := handlers.NewHandler(db, dataRoot, hub)
	authHandler := handlers.NewAuthHandler(db, otpStore, otpGuard)
	shareHandler := handlers.NewShareHandler(db, dataRoot, baseURL)

	// Share expiry notifications
	expirationChecker := handlers.NewShareExpirationChecker(db, hub)
	expirationChecker.StartBackgroundCheck(1 * time.Hour)

	// Routes
	e.GET("/health", h.HealthCheck)
	e.GET("/api/health", h.HealthCheck)

	api := e.Group("/api")

	// Auth routes (public)
	api.POST("/auth/request-otp", authHandler.RequestOTP)
	api.POST("/auth/verify-otp", authHandler.VerifyOTP)

	// Protected routes
	authApi := api.Group("")
	authApi.Use(authHandler.JWTMiddleware)

	// Folder routes
	authApi.POST("/folders", h.CreateFolder)
	authApi.GET("/folders/root", h.GetRootFolders)
	authApi.GET("/folders/:id", h.GetFolderDetails)
	authApi.GET("/folders/:id/subfolders", h.GetSubfolders)
	authApi.DELETE("/folders/:id", h.DeleteFolder)
	authApi.POST("/folders/:id/share", shareHandler.CreateFolderShare)

	// File routes
	authApi.POST("/files/upload", h.UploadFile)
	authApi.GET("/files/root", h.GetRootFiles)
	authApi.GET("/files/folder/:id", h.GetFolderFiles)
	authApi.GET("/files/:id/download", h.DownloadFile)
	authApi.GET("/files/:id/preview", h.GetPreview)
	authApi.GET("/files/:id/thumbnail", h.GetThumbnail)
	authApi.DELETE("/files/:id", h.DeleteFile)
	authApi.POST("/files/:id/share", shareHandler.CreateFileShare)

	// Share management
	authApi.GET("/shared/my-shares", shareHandler.ListMyShares)
	authApi.DELETE("/shared/:shareId", shareHandler.RevokeShare)

	// Live events
	authApi.GET("/events", h.HandleWebSocket)

	// Public share routes; the link token is the only credential
	e.GET("/public/shared/:token/info", shareHandler.ShareInfo)
	e.GET("/public/shared/:token", shareHandler.PublicDownload)
	e.GET("/public/shared/:token/preview", shareHandler.PublicPreview)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info().Str("port", port).Str("env", env).Msg("starting server")
	if err := e.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
