package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/client"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/store"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

func conversationKind(c *gin.Context) string {
	if c.Query("kind") == wire.KindDM {
		return wire.KindDM
	}
	return wire.KindSpace
}

func queryInt64(c *gin.Context, name string) int64 {
	v, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return v
}

// handleListSpaces handles GET /api/v1/spaces
func (s *Server) handleListSpaces(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "100"))
	conversations, err := s.chat.ListConversations(c.Request.Context(), pageSize)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Listing failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"spaces": conversations, "count": len(conversations)})
}

// handleSpaceMessages handles GET /api/v1/spaces/:id/messages
func (s *Server) handleSpaceMessages(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "30"))
	topics, err := s.chat.GetThreads(c.Request.Context(), c.Param("id"), conversationKind(c), client.ThreadQuery{
		PageSize:    pageSize,
		SinceMicros: queryInt64(c, "since"),
		UntilMicros: queryInt64(c, "until"),
		MaxPages:    int(queryInt64(c, "max_pages")),
	})
	if err != nil {
		var paginationError *client.PaginationError
		if errors.As(err, &paginationError) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid time window", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Fetch failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics, "count": len(topics)})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleSendMessage handles POST /api/v1/spaces/:id/messages
func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	topic, err := s.chat.CreateTopic(c.Request.Context(), c.Param("id"), conversationKind(c), req.Text)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Send failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"topic": topic})
}

type exportRequest struct {
	SinceMicros int64 `json:"since_micros"`
	UntilMicros int64 `json:"until_micros"`
	MaxPages    int   `json:"max_pages"`
	PageSize    int   `json:"page_size"`
}

// handleExport handles POST /api/v1/spaces/:id/export
func (s *Server) handleExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	var batches []*client.Batch
	err := s.chat.ExportChatBatches(c.Request.Context(), c.Param("id"), conversationKind(c), client.ExportOptions{
		PageSize:      req.PageSize,
		SinceMicros:   req.SinceMicros,
		UntilMicros:   req.UntilMicros,
		MaxPages:      req.MaxPages,
		ExpandReplies: true,
	}, func(batch *client.Batch) error {
		batches = append(batches, batch)
		return nil
	})
	if err != nil {
		status := http.StatusBadGateway
		var paginationError *client.PaginationError
		if errors.As(err, &paginationError) {
			status = http.StatusBadRequest
		}
		c.JSON(status, ErrorResponse{Error: "Export failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "pages": len(batches)})
}

type markReadRequest struct {
	LastReadMicros int64 `json:"last_read_micros"`
}

// handleMarkRead handles POST /api/v1/spaces/:id/read
func (s *Server) handleMarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if req.LastReadMicros == 0 {
		req.LastReadMicros = time.Now().UnixMicro()
	}
	if err := s.chat.MarkGroupRead(c.Request.Context(), c.Param("id"), conversationKind(c), req.LastReadMicros); err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Mark read failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type presenceRequest struct {
	Conversations []wire.Conversation `json:"conversations" binding:"required"`
}

// handlePresence handles POST /api/v1/presence
func (s *Server) handlePresence(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	records, err := s.chat.PresenceAcrossConversations(c.Request.Context(), req.Conversations)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Presence lookup failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": records, "count": len(records)})
}

type favoriteRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Name           string `json:"name"`
}

// handleListFavorites handles GET /api/v1/favorites
func (s *Server) handleListFavorites(c *gin.Context) {
	favorites, err := s.store.ListFavorites()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": favorites, "count": len(favorites)})
}

// handleAddFavorite handles POST /api/v1/favorites
func (s *Server) handleAddFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if err := s.store.AddFavorite(req.ConversationID, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// handleRemoveFavorite handles DELETE /api/v1/favorites/:id
func (s *Server) handleRemoveFavorite(c *gin.Context) {
	err := s.store.RemoveFavorite(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not a favorite"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type hideRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// handleListHidden handles GET /api/v1/hidden
func (s *Server) handleListHidden(c *gin.Context) {
	hidden, err := s.store.ListHidden()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hidden": hidden, "count": len(hidden)})
}

// handleHide handles POST /api/v1/hidden
func (s *Server) handleHide(c *gin.Context) {
	var req hideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if err := s.store.HideConversation(req.ConversationID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// handleUnhide handles DELETE /api/v1/hidden/:id
func (s *Server) handleUnhide(c *gin.Context) {
	err := s.store.UnhideConversation(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not hidden"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleGetLastViewed handles GET /api/v1/last-viewed/:account
func (s *Server) handleGetLastViewed(c *gin.Context) {
	conversationID, err := s.store.LastViewed(c.Param("account"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No last-viewed conversation"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID})
}

type lastViewedRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// handleSetLastViewed handles PUT /api/v1/last-viewed/:account
func (s *Server) handleSetLastViewed(c *gin.Context) {
	var req lastViewedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if err := s.store.SetLastViewed(c.Param("account"), req.ConversationID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Store failure", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}
