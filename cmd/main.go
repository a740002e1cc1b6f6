package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"libraryapi/internal/handlers"
	"libraryapi/internal/middleware"
	"libraryapi/internal/models"
	"libraryapi/internal/repositories"
	"libraryapi/internal/services"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.User{}, &models.Book{}, &models.Checkout{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	checkoutRepo := repositories.NewCheckoutRepository(db)

	libraryService := services.NewLibraryService(db, userRepo, bookRepo, checkoutRepo)

	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(middleware.RateLimit(rateLimitFromEnv()))

	handlers.RegisterRoutes(router, libraryService)

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", serverAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func rateLimitFromEnv() (float64, int) {
	rps := 50.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Fatalf("invalid RATE_LIMIT_RPS %q: %v", v, err)
		}
		rps = parsed
	}
	burst := 100
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid RATE_LIMIT_BURST %q: %v", v, err)
		}
		burst = parsed
	}
	return rps, burst
}
