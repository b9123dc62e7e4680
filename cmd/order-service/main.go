package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/watch_orders/internal/cache"
	"github.com/fjod/watch_orders/internal/clients"
	orderhttp "github.com/fjod/watch_orders/internal/http"
	"github.com/fjod/watch_orders/internal/publisher"
	"github.com/fjod/watch_orders/internal/repository"
	"github.com/fjod/watch_orders/internal/service"
	"github.com/fjod/watch_orders/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	log, err := logger.New(getEnv("LOG_MODE", "dev"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Configuration
	httpPort := getEnv("ORDER_SERVICE_PORT", "8084")
	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoDBName := getEnv("MONGO_DB_NAME", "ordersdb")
	customerBaseURL := getEnv("CUSTOMER_SERVICE_URL", "http://localhost:8081/api/v1/customers")
	catalogBaseURL := getEnv("CATALOG_SERVICE_URL", "http://localhost:8082/api/v1/catalogs")
	watchBaseURL := getEnv("WATCH_SERVICE_URL", "http://localhost:8082/api/v1/watches")
	planBaseURL := getEnv("SERVICE_PLAN_SERVICE_URL", "http://localhost:8083/api/v1/serviceplans")
	kafkaBroker := getEnv("KAFKA_BROKER", "localhost:9092")
	collaboratorTimeout := 3 * time.Second

	// Set up MongoDB connection
	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, mongoURI, mongoDBName)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", "error", err)
	}
	repo := repository.NewMongoRepository(mongoDB)
	if err := repository.EnsureIndexes(ctx, repo); err != nil {
		log.Fatal("failed to create indexes", "error", err)
	}
	log.Info("connected to MongoDB", "uri", mongoURI)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", "error", err)
	}
	log.Info("redis ping succeeded")

	orderCache := cache.NewRedisCache(redisClient)

	customerClient := clients.NewHTTPCustomerClient(customerBaseURL, collaboratorTimeout)
	catalogClient := clients.NewHTTPCatalogClient(catalogBaseURL, collaboratorTimeout)
	watchClient := clients.NewHTTPWatchClient(watchBaseURL, collaboratorTimeout)
	planClient := clients.NewHTTPServicePlanClient(planBaseURL, collaboratorTimeout)

	orders := service.NewOrderService(repo, orderCache, customerClient, catalogClient, watchClient, planClient, log)
	handler := orderhttp.NewOrdersHandler(orders, log)
	router := orderhttp.NewRouter(handler)

	// Outbox poller publishes order lifecycle events
	pollerCtx, stopPoller := context.WithCancel(ctx)
	poller := publisher.NewOutboxPoller(repo, log, kafkaBroker)
	go poller.Run(pollerCtx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", httpPort),
		Handler: router,
	}

	go func() {
		log.Info("order service listening", "port", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to serve", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down order service")
	stopPoller()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	if err := mongoDB.Client().Disconnect(ctx); err != nil {
		log.Error("mongo disconnect failed", "error", err)
	}
	log.Info("order service stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
