package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raymonnguyen/baubiz-sub000/internal/server"
	"github.com/raymonnguyen/baubiz-sub000/internal/server/cache"
	"github.com/raymonnguyen/baubiz-sub000/internal/server/repository"
	"github.com/raymonnguyen/baubiz-sub000/internal/server/service"
)

func main() {
	// Configuration
	httpPort := getEnv("HTTP_PORT", "8080")
	dbPath := getEnv("DB_PATH", "cart-server.db")
	migrationsPath := getEnv("MIGRATIONS_PATH", "migrations")
	mongoURI := getEnv("MONGO_URI", "")
	mongoDBName := getEnv("MONGO_DB_NAME", "cartdb")
	redisAddr := getEnv("REDIS_ADDR", "")
	apiTokens := getEnv("API_TOKENS", "dev-token:dev-user")

	ctx := context.Background()

	// Storage backend: MongoDB when MONGO_URI is set, embedded SQLite otherwise.
	var repo repository.CartRepository
	if mongoURI != "" {
		client, err := repository.ConnectMongoDB(ctx, mongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		mongoRepo := repository.NewMongoRepository(client, mongoDBName)
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}
		repo = mongoRepo
		log.Printf("Connected to MongoDB at %s", mongoURI)
	} else {
		sqliteRepo, err := repository.NewSQLiteRepository(dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := sqliteRepo.RunMigrations(migrationsPath); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		repo = sqliteRepo
		log.Printf("Using SQLite database at %s", dbPath)
	}
	defer func() {
		if err := repo.Close(ctx); err != nil {
			log.Printf("Failed to close repository: %v", err)
		}
	}()

	// Cache: Redis when configured, otherwise a no-op.
	var cartCache cache.CartCache = cache.Noop{}
	if redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Redis connection failed:", err)
		}
		cartCache = cache.NewRedisCache(redisClient)
		log.Printf("Redis cache enabled at %s", redisAddr)
	}

	if err := seedProducts(ctx, repo); err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}

	svc := service.NewCartService(repo, cartCache)
	verifier := server.NewStaticTokenVerifier(parseTokens(apiTokens))
	router := server.NewRouter(svc, verifier)

	srv := &http.Server{
		Addr:    ":" + httpPort,
		Handler: router,
	}

	go func() {
		log.Printf("Cart server listening on :%s", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down cart server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Cart server stopped")
}

// parseTokens turns "token1:user1,token2:user2" into a lookup map.
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		token, userID, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || userID == "" {
			continue
		}
		tokens[token] = userID
	}
	return tokens
}

// seedProducts loads a small demo catalog so a fresh server is usable
// without a separate admin surface.
func seedProducts(ctx context.Context, repo repository.CartRepository) error {
	products := []repository.Product{
		{ID: "prod-lamp", Title: "Vintage Brass Lamp", Price: 42.50, SellerID: "seller-ana", SellerName: "Ana's Antiques", SellerVerified: true},
		{ID: "prod-chair", Title: "Mid-Century Chair", Price: 120.00, SellerID: "seller-ana", SellerName: "Ana's Antiques", SellerVerified: true},
		{ID: "prod-radio", Title: "Tube Radio 1954", Price: 89.99, SellerID: "seller-bo", SellerName: "Bo Electronics", SellerBusiness: true},
		{ID: "prod-camera", Title: "Rangefinder Camera", Price: 310.00, SellerID: "seller-bo", SellerName: "Bo Electronics", SellerBusiness: true, SellerVerified: true},
	}
	for _, p := range products {
		if err := repo.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	log.Printf("Seeded %d demo products", len(products))
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
