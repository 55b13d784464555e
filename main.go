package main

import (
	"context"
	"embed"
	"log"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"gorm.io/gorm/logger"

	"designchat/internal/backend"
	"designchat/internal/config"
	"designchat/internal/database"
	"designchat/internal/services"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	backend.SetResponseHeaderTimeout(cfg.ResponseHeaderTimeout)

	logLevel := logger.Warn
	if database.IsDevelopment() {
		logLevel = logger.Info
	}
	db, err := database.Init(database.Config{
		Path:     cfg.DBPath,
		LogLevel: logLevel,
	})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}

	svc, err := services.NewServices(db, cfg)
	if err != nil {
		log.Fatalf("Error creating services: %v", err)
	}
	backend.SetTokenSource(svc.Auth.Token)

	baseURL := cfg.APIBaseURL
	if settings, err := svc.AppSettings.Get(context.Background()); err == nil && settings.APIBaseURL != "" {
		baseURL = settings.APIBaseURL
	}
	app := NewApp(svc, backend.NewClient(baseURL))
	if sqlDB, err := db.DB(); err == nil {
		app.dbClose = sqlDB.Close
	}

	// Create application with options
	err = wails.Run(&options.App{
		Title:  "Design Chat",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Linux: &linux.Options{
			WindowIsTranslucent: false,
			WebviewGpuPolicy:    linux.WebviewGpuPolicyAlways,
			ProgramName:         "Design Chat",
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
			svc.Chat,
		},
	})

	if err != nil {
		log.Printf("Error: %v", err)
	}
}
