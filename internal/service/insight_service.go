package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/internal/insight"
	"scanalytics-backend/internal/model"
	"scanalytics-backend/pkg/logger"

	"github.com/cloudwego/eino/components/prompt"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

const historyKey = "message_histories"

// ModelFactory builds the chat model for one call.
type ModelFactory func(ctx context.Context) (einoModel.BaseChatModel, error)

// Options tunes an InsightService.
type Options struct {
	SystemPrompt       string
	Timeout            time.Duration
	MaxHistoryMessages int
	LogDetail          bool
}

// InsightService turns a conversation into a stream of insight snapshots.
type InsightService struct {
	newModel ModelFactory
	template prompt.ChatTemplate
	opts     Options
}

func New(factory ModelFactory, opts Options) *InsightService {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = insight.DefaultSystemPrompt
	}
	return &InsightService{
		newModel: factory,
		template: prompt.FromMessages(schema.GoTemplate,
			schema.SystemMessage(opts.SystemPrompt),
			schema.MessagesPlaceholder(historyKey, false),
		),
		opts: opts,
	}
}

// NewFromConfig wires the configured provider with the insight schema as its
// response format.
func NewFromConfig(cfg *config.Config) *InsightService {
	format := model.ResponseFormat{Name: insight.SchemaName, Schema: json.RawMessage(insight.SchemaJSON)}
	factory := func(ctx context.Context) (einoModel.BaseChatModel, error) {
		return model.NewChatModel(ctx, cfg, format)
	}
	return New(factory, Options{
		SystemPrompt:       cfg.Agent.SystemPrompt,
		Timeout:            cfg.Chat.Timeout,
		MaxHistoryMessages: cfg.Agent.MaxHistoryMessages,
		LogDetail:          cfg.Agent.LogDetail,
	})
}

// Stream starts one model call. Partial events carry monotone snapshots and
// the channel ends with exactly one complete or error event, then closes.
// The returned error is set when the call could not be started; it is one of
// ErrProviderNotConfigured, ErrUpstream or ErrUpstreamTimeout.
func (s *InsightService) Stream(ctx context.Context, turns []model.ChatTurn) (<-chan insight.Event, error) {
	messages, err := s.buildMessages(ctx, turns)
	if err != nil {
		logger.Errorf("format prompt: %v", err)
		return nil, ErrUpstream
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	}

	cm, err := s.newModel(callCtx)
	if err != nil {
		cancel()
		if errors.Is(err, ErrProviderNotConfigured) {
			logger.Errorf("chat provider: %v", err)
			return nil, err
		}
		return nil, s.mask(callCtx, err)
	}

	reader, err := cm.Stream(callCtx, messages)
	if err != nil {
		cancel()
		return nil, s.mask(callCtx, err)
	}

	out := make(chan insight.Event, 16)
	go func() {
		defer cancel()
		defer close(out)
		defer reader.Close()
		s.pump(ctx, callCtx, reader, out)
	}()
	return out, nil
}

func (s *InsightService) pump(ctx, callCtx context.Context, reader *schema.StreamReader[*schema.Message], out chan<- insight.Event) {
	start := time.Now()
	var (
		acc       insight.Accumulator
		snapshots int
	)
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			send(ctx, out, insight.Event{Type: insight.EventError, Err: s.mask(callCtx, err)})
			return
		}
		if chunk == nil {
			continue
		}
		snap, ok := acc.Write(chunk.Content)
		if !ok {
			continue
		}
		snapshots++
		if !send(ctx, out, insight.Event{Type: insight.EventPartial, Result: snap}) {
			return
		}
	}

	final, err := acc.Final()
	if err != nil {
		logger.WithFields(logrus.Fields{"bytes": len(acc.Raw())}).Errorf("model output rejected: %v", err)
		send(ctx, out, insight.Event{Type: insight.EventError, Err: ErrUpstream})
		return
	}

	fields := logrus.Fields{
		"snapshots": snapshots,
		"queries":   len(final.Queries),
		"latency":   time.Since(start).String(),
	}
	if s.opts.LogDetail {
		fields["raw"] = acc.Raw()
	}
	logger.WithFields(fields).Info("insight stream completed")
	send(ctx, out, insight.Event{Type: insight.EventComplete, Result: final})
}

// mask logs the real cause and returns one of the generic sentinels.
func (s *InsightService) mask(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Warnf("model call timed out: %v", err)
		return ErrUpstreamTimeout
	}
	logger.Errorf("model call failed: %v", err)
	return ErrUpstream
}

func (s *InsightService) buildMessages(ctx context.Context, turns []model.ChatTurn) ([]*schema.Message, error) {
	if limit := s.opts.MaxHistoryMessages; limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	history := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		if t.Role == model.RoleAssistant {
			history = append(history, schema.AssistantMessage(t.Content, nil))
			continue
		}
		history = append(history, schema.UserMessage(t.Content))
	}
	return s.template.Format(ctx, map[string]any{historyKey: history})
}

// send delivers ev unless the consumer has gone away.
func send(ctx context.Context, out chan<- insight.Event, ev insight.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
