package handler

import (
	"net/http"
	"time"

	"scanalytics-backend/internal/model"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	provider string
}

func NewHealthHandler(provider string) *HealthHandler {
	return &HealthHandler{provider: provider}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:    "ok",
		Provider:  h.provider,
		Timestamp: time.Now().Unix(),
	})
}
