// Package main is the entry point for the replicated evaluator service: a
// stateless process that scores sequence batches on behalf of the planner's
// global beam coordinator. Run any number of replicas and list them in the
// planner's EVALUATOR_ENDPOINTS for round-robin dispatch.
package main

import (
	"fmt"
	stdlog "log"
	"os"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/aristath/trading-planner/pkg/logger"
	"github.com/aristath/trading-planner/services/evaluator/handlers"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9000"
	}

	numWorkers := runtime.NumCPU()
	if numWorkers < 2 {
		numWorkers = 2
	}

	stdlog.Printf("Starting evaluator service on port %s with %d workers", port, numWorkers)

	log := logger.New(logger.Config{Level: os.Getenv("LOG_LEVEL"), Pretty: true})

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	batchEvaluator := handlers.NewBatchEvaluator(numWorkers, log)
	advancedEvaluator := handlers.NewAdvancedEvaluator(log)

	router.GET("/health", handlers.HealthCheck)
	router.POST("/evaluate/batch", batchEvaluator.EvaluateBatch)
	router.POST("/evaluate/monte-carlo", advancedEvaluator.EvaluateMonteCarlo)
	router.POST("/evaluate/stochastic", advancedEvaluator.EvaluateStochastic)
	router.POST("/simulate/batch", batchEvaluator.SimulateBatch)

	addr := fmt.Sprintf(":%s", port)
	if err := router.Run(addr); err != nil {
		stdlog.Fatalf("Evaluator server failed: %v", err)
	}
}
