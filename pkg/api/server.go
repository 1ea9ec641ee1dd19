// Package api exposes the chat client over a local HTTP REST API.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/client"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/store"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

// ChatService is the slice of the chat client the API needs.
type ChatService interface {
	ListConversations(ctx context.Context, pageSize int) ([]wire.Conversation, error)
	GetThreads(ctx context.Context, conversationID, kind string, q client.ThreadQuery) ([]wire.Topic, error)
	ExportChatBatches(ctx context.Context, conversationID, kind string, opts client.ExportOptions, onBatch func(*client.Batch) error) error
	CreateTopic(ctx context.Context, conversationID, kind, text string) (*wire.Topic, error)
	MarkGroupRead(ctx context.Context, conversationID, kind string, lastReadMicros int64) error
	PresenceAcrossConversations(ctx context.Context, conversations []wire.Conversation) ([]wire.PresenceRecord, error)
}

// Server is the HTTP API server.
type Server struct {
	chat       ChatService
	store      *store.Store
	router     *gin.Engine
	port       int
	httpServer *http.Server
}

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	RateLimit    int // requests per minute, 0 disables
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8420,
		EnableCORS:   true,
		RateLimit:    120,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// NewServer creates the HTTP API server.
func NewServer(chat ChatService, localStore *store.Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		chat:   chat,
		store:  localStore,
		router: router,
		port:   config.Port,
	}

	if config.EnableCORS {
		router.Use(CORSMiddleware())
	}
	if config.RateLimit > 0 {
		router.Use(RateLimitMiddleware(config.RateLimit))
	}
	router.Use(LoggingMiddleware())
	router.Use(gin.Recovery())

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return server
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		spaces := v1.Group("/spaces")
		{
			spaces.GET("", s.handleListSpaces)
			spaces.GET("/:id/messages", s.handleSpaceMessages)
			spaces.POST("/:id/messages", s.handleSendMessage)
			spaces.POST("/:id/export", s.handleExport)
			spaces.POST("/:id/read", s.handleMarkRead)
		}

		v1.POST("/presence", s.handlePresence)

		favorites := v1.Group("/favorites")
		{
			favorites.GET("", s.handleListFavorites)
			favorites.POST("", s.handleAddFavorite)
			favorites.DELETE("/:id", s.handleRemoveFavorite)
		}

		hidden := v1.Group("/hidden")
		{
			hidden.GET("", s.handleListHidden)
			hidden.POST("", s.handleHide)
			hidden.DELETE("/:id", s.handleUnhide)
		}

		v1.GET("/last-viewed/:account", s.handleGetLastViewed)
		v1.PUT("/last-viewed/:account", s.handleSetLastViewed)

		v1.GET("/health", s.handleHealth)
	}
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	log.Printf("🚀 API server listening on port %d", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	log.Println("🛑 Stopping API server...")
	return s.httpServer.Shutdown(ctx)
}
