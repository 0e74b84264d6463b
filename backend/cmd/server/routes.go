package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"buddy/backend/internal/audit"
	"buddy/backend/internal/constants"
	"buddy/backend/internal/graph"
	"buddy/backend/internal/knowledge"
	"buddy/backend/internal/observability"
	"buddy/backend/internal/transcript"
	apperrors "buddy/backend/pkg/errors"
)

type transcriptAppender interface {
	Append(ctx context.Context, chatID, userID, role, content string) (*transcript.Message, error)
}

type chatCoach interface {
	Reply(ctx context.Context, userID, chatID string, flavour knowledge.Flavour, content string) (*knowledge.Reply, error)
}

type knowledgeSearcher interface {
	Search(ctx context.Context, userID, query string, threshold *float64) (*graph.Neo4jGraph, error)
}

// api holds the handlers' dependencies
type api struct {
	transcripts transcriptAppender
	coach       chatCoach
	dispatcher  *knowledge.Dispatcher
	runs        *audit.Log
	searcher    knowledgeSearcher
	metrics     *observability.Collector
	log         *zap.Logger
}

func newRouter(a *api) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(a.log))
	router.Use(gin.Recovery())
	router.Use(cors())
	router.Use(metricsMiddleware(a.metrics))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	// API routes
	routes := router.Group("/api", requireUser())
	{
		routes.POST("/chats/:id/messages", a.appendMessage)
		routes.POST("/chats/:id/reply", a.reply)
		routes.POST("/knowledge/build", a.build)
		routes.POST("/knowledge/search", a.search)
		routes.GET("/knowledge/runs", a.listRuns)
		routes.POST("/knowledge/runs/:id/retry", a.retryRun)
	}
	return router
}

// appendMessage stores one transcript line as given. Builds are queued only
// by the coach's own closing reply or an explicit build request, never by a
// client-supplied line.
func (a *api) appendMessage(c *gin.Context) {
	userID := c.GetString(constants.UserIDContextKey)
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id must be a UUID"})
		return
	}

	var req struct {
		Role    string `json:"role" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := a.transcripts.Append(c.Request.Context(), chatID.String(), userID, req.Role, req.Content)
	if err != nil {
		if errors.Is(err, transcript.ErrInvalidRole) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a.log.Error("Failed to append message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store message"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// reply stores the user's message and answers it with the coach
func (a *api) reply(c *gin.Context) {
	userID := c.GetString(constants.UserIDContextKey)
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id must be a UUID"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
		Flavour string `json:"flavour"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	flavour, err := knowledge.ParseFlavour(req.Flavour)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := a.coach.Reply(c.Request.Context(), userID, chatID.String(), flavour, req.Content)
	if err != nil {
		a.writeError(c, "Failed to generate reply", err)
		return
	}
	c.JSON(http.StatusCreated, reply)
}

func (a *api) build(c *gin.Context) {
	userID := c.GetString(constants.UserIDContextKey)

	var req struct {
		ChatID string `json:"chat_id" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, _, err := a.dispatcher.Submit(c.Request.Context(), knowledge.BuildRequest{UserID: userID, ChatID: req.ChatID})
	if err != nil {
		a.writeError(c, "Failed to queue knowledge build", err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (a *api) search(c *gin.Context) {
	userID := c.GetString(constants.UserIDContextKey)

	var req struct {
		Query     string   `json:"query" binding:"required"`
		Threshold *float64 `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Threshold != nil {
		if err := graph.ValidateThreshold(*req.Threshold); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := a.searcher.Search(c.Request.Context(), userID, req.Query, req.Threshold)
	if err != nil {
		a.writeError(c, "Failed to search knowledge graph", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"context": result.ToContext(),
		"matches": result.Ranking,
		"graph":   result.ToGraphData(),
	})
}

func (a *api) listRuns(c *gin.Context) {
	userID := c.GetString(constants.UserIDContextKey)

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := a.runs.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		a.writeError(c, "Failed to list builds", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (a *api) retryRun(c *gin.Context) {
	userID := c.GetString(constants.UserIDContextKey)
	ctx := c.Request.Context()

	prev, err := a.runs.Get(ctx, c.Param("id"))
	if err == nil && prev.UserID != userID {
		err = audit.ErrRunNotFound
	}
	if err != nil {
		a.writeError(c, "Failed to load build", err)
		return
	}

	run, _, err := a.dispatcher.Retry(ctx, prev.ID)
	if err != nil {
		a.writeError(c, "Failed to retry build", err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// writeError maps domain errors onto status codes and hides the rest
func (a *api) writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, audit.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, knowledge.ErrNotRetryable):
		status = http.StatusConflict
	case errors.Is(err, knowledge.ErrQueueFull):
		status = http.StatusTooManyRequests
	case errors.Is(err, knowledge.ErrDispatcherClosed):
		status = http.StatusServiceUnavailable
	case apperrors.IsErrorType(err, apperrors.ErrorTypeCollaborator):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		a.log.Error(msg, zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requireUser authenticates the caller by the user-id header
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(constants.UserIDHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid user-id header"})
			return
		}
		c.Set(constants.UserIDContextKey, id.String())
		c.Next()
	}
}

// CORS middleware
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, user-id")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func metricsMiddleware(metrics *observability.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
