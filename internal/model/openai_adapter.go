package model

import (
	"context"
	"errors"
	"fmt"
	"io"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/pkg/logger"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

// openaiChatModel adapts any OpenAI compatible endpoint (OpenRouter by
// default) to the eino chat model interface.
type openaiChatModel struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	format      *openai.ChatCompletionResponseFormat
}

func newOpenAIChatModel(c config.OpenAIConfig, format ResponseFormat, httpClient openai.HTTPDoer) *openaiChatModel {
	clientConfig := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		clientConfig.BaseURL = c.BaseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	m := &openaiChatModel{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       c.Model,
		maxTokens:   c.MaxTokens,
		temperature: c.Temperature,
	}
	if len(format.Schema) > 0 {
		m.format = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   format.Name,
				Schema: format.Schema,
				Strict: true,
			},
		}
	}
	return m
}

func (m *openaiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	req := m.buildRequest(messages, opts...)
	logger.Debugf("openai generate: model=%s messages=%d", req.Model, len(req.Messages))

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in %s response", req.Model)
	}

	return &schema.Message{
		Role:    schema.Assistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

func (m *openaiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	req := m.buildRequest(messages, opts...)
	req.Stream = true
	logger.Debugf("openai stream: model=%s messages=%d", req.Model, len(req.Messages))

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	reader, writer := schema.Pipe[*schema.Message](100)
	go func() {
		defer stream.Close()
		defer writer.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				writer.Send(nil, err)
				return
			}
			if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
				continue
			}
			msg := &schema.Message{
				Role:    schema.Assistant,
				Content: response.Choices[0].Delta.Content,
			}
			if closed := writer.Send(msg, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

func (m *openaiChatModel) buildRequest(messages []*schema.Message, opts ...einoModel.Option) openai.ChatCompletionRequest {
	options := einoModel.GetCommonOptions(&einoModel.Options{
		Model:       &m.model,
		MaxTokens:   &m.maxTokens,
		Temperature: &m.temperature,
	}, opts...)

	req := openai.ChatCompletionRequest{
		Model:          m.model,
		Messages:       convertMessages(messages),
		ResponseFormat: m.format,
	}
	if options.Model != nil {
		req.Model = *options.Model
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		req.MaxTokens = *options.MaxTokens
	}
	if options.Temperature != nil && *options.Temperature > 0 {
		req.Temperature = *options.Temperature
	}
	return req
}

func convertMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		case schema.System:
			role = openai.ChatMessageRoleSystem
		}

		// empty assistant turns are rejected by several providers
		if msg.Content == "" && role == openai.ChatMessageRoleAssistant {
			continue
		}

		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return result
}
