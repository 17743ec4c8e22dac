package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"

	"decision-simulator/handler"
	"decision-simulator/internal/imagery"
	"decision-simulator/internal/integrations/paramstore"
	"decision-simulator/internal/integrations/replicate"
	"decision-simulator/internal/repository"
	"decision-simulator/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	historyIndex := envString("HISTORY_INDEX", "GSI1")
	maxDecisionLen := envInt("MAX_DECISION_LENGTH", 10000)
	imageConcurrency := envInt("IMAGE_CONCURRENCY", 6)
	replicateToken := os.Getenv("REPLICATE_API_TOKEN")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.NewDynamo(awsdynamodb.NewFromConfig(cfg), stateTable, historyIndex)
	if err != nil {
		slog.Error("failed to create simulation store", "err", err)
		os.Exit(1)
	}

	var tokens replicate.TokenSource = replicate.ParamStoreToken(ssmClient, paramPrefix+"/replicate-token")
	if replicateToken != "" {
		tokens = replicate.StaticToken(replicateToken)
	}
	replicateClient, err := replicate.NewClient(tokens)
	if err != nil {
		slog.Error("failed to create Replicate client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	svc, err := usecase.NewSimulationService(
		store,
		imagery.NewProvider(replicateClient, logger),
		logger,
		usecase.Config{MaxDecisionLen: maxDecisionLen, ImageConcurrency: imageConcurrency},
	)
	if err != nil {
		slog.Error("failed to create simulation service", "err", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	h, err := handler.NewHandler(svc, handler.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
