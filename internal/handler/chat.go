package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"scanalytics-backend/internal/insight"
	"scanalytics-backend/internal/model"
	"scanalytics-backend/internal/service"
	"scanalytics-backend/internal/utils"
	"scanalytics-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes      = 1 << 20
	badRequestMessage = "Invalid request: expected a non-empty list of messages with role and content."
)

// InsightStreamer starts one model call for a conversation.
type InsightStreamer interface {
	Stream(ctx context.Context, turns []model.ChatTurn) (<-chan insight.Event, error)
}

type ChatHandler struct {
	insights  InsightStreamer
	heartbeat time.Duration
}

func NewChatHandler(insights InsightStreamer, heartbeat time.Duration) *ChatHandler {
	return &ChatHandler{
		insights:  insights,
		heartbeat: heartbeat,
	}
}

// StreamChat handles POST /api/chat. Until the first snapshot arrives a
// failure is answered with a plain JSON error; afterwards failures travel as
// an SSE error frame.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		logger.Warnf("read chat body: %v", err)
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: badRequestMessage})
		return
	}

	req, err := model.ParseChatRequest(body)
	if err != nil {
		logger.Warnf("reject chat request: %v", err)
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: badRequestMessage})
		return
	}

	ctx := c.Request.Context()
	log := logger.WithFields(logrus.Fields{"turns": len(req.Messages), "shape": req.Shape.String()})
	log.Debug("chat request accepted")

	events, err := h.insights.Stream(ctx, req.Messages)
	if err != nil {
		c.JSON(errorStatus(err), model.ErrorResponse{Error: service.MaskedErrorMessage})
		return
	}

	var first insight.Event
	select {
	case ev, ok := <-events:
		if !ok {
			c.JSON(http.StatusBadGateway, model.ErrorResponse{Error: service.MaskedErrorMessage})
			return
		}
		first = ev
	case <-ctx.Done():
		return
	}
	if first.Type == insight.EventError {
		c.JSON(errorStatus(first.Err), model.ErrorResponse{Error: service.MaskedErrorMessage})
		return
	}

	sseWriter := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)
	if err := writeEvent(sseWriter, first); err != nil || first.Terminal() {
		sseWriter.Close()
		return
	}

	heartbeat := h.heartbeat
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				sseWriter.Close()
				return
			}
			if err := writeEvent(sseWriter, ev); err != nil {
				log.Warnf("write SSE frame: %v", err)
				return
			}
			if ev.Terminal() {
				sseWriter.Close()
				return
			}
			ticker.Reset(heartbeat)

		case <-ticker.C:
			if err := sseWriter.Write("heartbeat", gin.H{"timestamp": time.Now().Unix()}); err != nil {
				log.Warnf("write heartbeat: %v", err)
				return
			}

		case <-ctx.Done():
			log.Debug("client went away")
			return
		}
	}
}

func writeEvent(w *utils.SSEWriter, ev insight.Event) error {
	if ev.Type == insight.EventError {
		return w.Write(string(insight.EventError), model.ErrorResponse{Error: service.MaskedErrorMessage})
	}
	res := ev.Result
	if res.Queries == nil {
		res.Queries = []insight.Proposal{}
	}
	return w.Write(string(ev.Type), res)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrProviderNotConfigured):
		return http.StatusInternalServerError
	case errors.Is(err, service.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
