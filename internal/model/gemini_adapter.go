package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/pkg/logger"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const geminiRoleModel = "model"

// geminiChatModel talks to Gemini directly and constrains the output with a
// response schema derived from the JSON schema.
type geminiChatModel struct {
	apiKey      string
	model       string
	temperature float32
	schema      *genai.Schema
}

func newGeminiChatModel(c config.GeminiConfig, format ResponseFormat) (*geminiChatModel, error) {
	m := &geminiChatModel{
		apiKey:      c.APIKey,
		model:       c.Model,
		temperature: c.Temperature,
	}
	if m.model == "" {
		m.model = "gemini-2.0-flash-lite"
	}
	if len(format.Schema) > 0 {
		s, err := GeminiSchema(format.Schema)
		if err != nil {
			return nil, fmt.Errorf("convert response schema: %w", err)
		}
		m.schema = s
	}
	return m, nil
}

func (m *geminiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	reader, err := m.Stream(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var b strings.Builder
	for {
		msg, err := reader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		b.WriteString(msg.Content)
	}
	return &schema.Message{Role: schema.Assistant, Content: b.String()}, nil
}

func (m *geminiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	gm := client.GenerativeModel(m.model)
	options := einoModel.GetCommonOptions(&einoModel.Options{Temperature: &m.temperature}, opts...)
	if options.Temperature != nil && *options.Temperature > 0 {
		gm.SetTemperature(*options.Temperature)
	}
	if m.schema != nil {
		gm.ResponseMIMEType = "application/json"
		gm.ResponseSchema = m.schema
	}

	system, history, last := splitForGemini(messages)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if last == "" {
		client.Close()
		return nil, errors.New("gemini: conversation has no message to send")
	}

	cs := gm.StartChat()
	cs.History = history
	logger.Debugf("gemini stream: model=%s history=%d", m.model, len(history))
	iter := cs.SendMessageStream(ctx, genai.Text(last))

	reader, writer := schema.Pipe[*schema.Message](100)
	go func() {
		defer client.Close()
		defer writer.Close()

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				writer.Send(nil, err)
				return
			}
			text := candidateText(resp)
			if text == "" {
				continue
			}
			if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: text}, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

// splitForGemini folds system messages into one instruction, maps the prior
// turns onto Gemini history and returns the final turn's text to send.
func splitForGemini(messages []*schema.Message) (string, []*genai.Content, string) {
	var (
		system []string
		turns  []*schema.Message
	)
	for _, msg := range messages {
		if msg.Role == schema.System {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 {
		return strings.Join(system, "\n\n"), nil, ""
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, msg := range turns[:len(turns)-1] {
		if msg.Content == "" {
			continue
		}
		role := "user"
		if msg.Role == schema.Assistant {
			role = geminiRoleModel
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return strings.Join(system, "\n\n"), history, turns[len(turns)-1].Content
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

type jsonSchemaNode struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description"`
	Properties  map[string]*jsonSchemaNode `json:"properties"`
	Items       *jsonSchemaNode            `json:"items"`
	Required    []string                   `json:"required"`
	Enum        []string                   `json:"enum"`
}

// GeminiSchema converts the subset of JSON schema Gemini understands.
func GeminiSchema(raw json.RawMessage) (*genai.Schema, error) {
	var node jsonSchemaNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	return node.toGemini()
}

func (n *jsonSchemaNode) toGemini() (*genai.Schema, error) {
	s := &genai.Schema{
		Description: n.Description,
		Required:    n.Required,
		Enum:        n.Enum,
	}
	switch n.Type {
	case "object":
		s.Type = genai.TypeObject
		s.Properties = make(map[string]*genai.Schema, len(n.Properties))
		for name, prop := range n.Properties {
			child, err := prop.toGemini()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			s.Properties[name] = child
		}
	case "array":
		s.Type = genai.TypeArray
		if n.Items == nil {
			return nil, errors.New("array without items")
		}
		items, err := n.Items.toGemini()
		if err != nil {
			return nil, err
		}
		s.Items = items
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		return nil, fmt.Errorf("unsupported schema type %q", n.Type)
	}
	return s, nil
}
