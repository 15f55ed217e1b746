package main

import (
	"log"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"virtwin_back/content"
	"virtwin_back/export"
	"virtwin_back/layers"
	"virtwin_back/storage"
	"virtwin_back/store"
	"virtwin_back/tools"
	"virtwin_back/twins"
	"virtwin_back/users"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func corsConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}

	origins := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS"))
	if origins == "" {
		config.AllowAllOrigins = true
		return config
	}
	for _, origin := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			config.AllowOrigins = append(config.AllowOrigins, trimmed)
		}
	}
	return config
}

func main() {
	mustLoadEnv()

	db, err := store.OpenFromEnv()
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	if err := store.EnsureDefaults(db); err != nil {
		log.Fatalf("seed defaults: %v", err)
	}

	assets, err := storage.NewAssetStorageFromEnv()
	if err != nil {
		log.Fatalf("init asset storage: %v", err)
	}
	if assets == nil {
		log.Printf("main: object storage not configured, viewer uploads disabled")
	}

	r := gin.Default()
	r.Use(cors.New(corsConfig()))

	if _, err := users.RegisterRoutes(r, db); err != nil {
		log.Fatalf("register user routes: %v", err)
	}
	if _, err := layers.RegisterRoutes(r, db); err != nil {
		log.Fatalf("register layer routes: %v", err)
	}
	if _, err := tools.RegisterRoutes(r, db); err != nil {
		log.Fatalf("register tool routes: %v", err)
	}
	if _, err := content.RegisterRoutes(r, db); err != nil {
		log.Fatalf("register content routes: %v", err)
	}
	if _, err := twins.RegisterRoutes(r, db, assets); err != nil {
		log.Fatalf("register digital twin routes: %v", err)
	}
	if _, err := export.RegisterRoutes(r, db); err != nil {
		log.Fatalf("register export routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
