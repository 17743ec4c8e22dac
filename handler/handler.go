package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"decision-simulator/internal/domain"
	"decision-simulator/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	loggerKey         = "logger"
	maxBodyBytes      = 1 << 20
)

type SimulationUseCase interface {
	Simulate(ctx context.Context, in usecase.SimulateInput) (usecase.SimulateOutput, error)
	GetSimulation(ctx context.Context, id string) (usecase.SimulationDetail, error)
	History(ctx context.Context) ([]domain.Simulation, error)
	DeleteSimulation(ctx context.Context, id string) error
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler serves the simulation API from one gin engine, either directly over
// HTTP or behind API Gateway.
type Handler struct {
	uc     SimulationUseCase
	logger *slog.Logger
	engine *gin.Engine
	proxy  *ginadapter.GinLambda
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(uc SimulationUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), h.requestContext)
	h.register(r)

	h.engine = r
	h.proxy = ginadapter.New(r)
	return h, nil
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.proxy.ProxyWithContext(ctx, req)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// requestContext echoes or assigns the correlation id, attaches a request
// logger and logs the outcome.
func (h *Handler) requestContext(c *gin.Context) {
	start := time.Now()
	corrID := strings.TrimSpace(c.GetHeader(correlationHeader))
	if corrID == "" {
		corrID = uuid.NewString()
	}
	c.Header(correlationHeader, corrID)

	log := h.logger.With("correlation_id", corrID, "method", c.Request.Method, "path", c.Request.URL.Path)
	c.Set(loggerKey, log)

	c.Next()

	log.InfoContext(c.Request.Context(), "request handled", "status", c.Writer.Status(), "duration_ms", time.Since(start).Milliseconds())
}

func (h *Handler) requestLogger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if log, ok := v.(*slog.Logger); ok {
			return log
		}
	}
	return h.logger
}

func (h *Handler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	log := h.requestLogger(c)

	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		log.ErrorContext(ctx, "unexpected use case error", "err", err)
		abort(c, http.StatusInternalServerError, usecase.ErrorInternal, "internal error")
		return
	}

	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		log.InfoContext(ctx, "request rejected", "reason", ucErr.Reason)
		abort(c, http.StatusBadRequest, ucErr.Code, ucErr.Reason)
	case usecase.ErrorNotFound:
		abort(c, http.StatusNotFound, ucErr.Code, "Simulation not found")
	default:
		log.ErrorContext(ctx, "request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		abort(c, http.StatusInternalServerError, usecase.ErrorInternal, "internal error")
	}
}

func abort(c *gin.Context, status int, code usecase.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: string(code), Message: message})
}
