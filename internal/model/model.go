package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/internal/utils"
	"scanalytics-backend/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
)

// ErrProviderNotConfigured is returned at call time when the selected
// provider has no API key or is unknown.
var ErrProviderNotConfigured = errors.New("chat provider is not configured")

const (
	ProviderOpenAI = "openai"
	ProviderDoubao = "doubao"
	ProviderQwen   = "qwen"
	ProviderGemini = "gemini"
)

// ResponseFormat constrains providers that support structured output.
type ResponseFormat struct {
	Name   string
	Schema json.RawMessage
}

// NewChatModel builds the configured provider. It is called once per request
// so a missing key surfaces on the call instead of at startup.
func NewChatModel(ctx context.Context, cfg *config.Config, format ResponseFormat) (einoModel.BaseChatModel, error) {
	provider := strings.ToLower(cfg.Model.Provider)
	switch provider {
	case ProviderOpenAI, "openrouter", "":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("%w: openai api key is empty (set OPENROUTER_API_KEY or OPENAI_API_KEY)", ErrProviderNotConfigured)
		}
		headers := map[string]string{}
		if cfg.OpenAI.Referer != "" {
			headers["HTTP-Referer"] = cfg.OpenAI.Referer
		}
		if cfg.OpenAI.Title != "" {
			headers["X-Title"] = cfg.OpenAI.Title
		}
		return newOpenAIChatModel(cfg.OpenAI, format, newProviderHTTPClient(headers, cfg.OpenAI.DebugRequest)), nil
	case ProviderDoubao:
		if cfg.Doubao.APIKey == "" {
			return nil, fmt.Errorf("%w: doubao api key is empty (set ARK_API_KEY)", ErrProviderNotConfigured)
		}
		return createDoubaoModel(ctx, cfg.Doubao)
	case ProviderQwen:
		if cfg.Qwen.APIKey == "" {
			return nil, fmt.Errorf("%w: qwen api key is empty (set DASHSCOPE_API_KEY)", ErrProviderNotConfigured)
		}
		return createQwenModel(ctx, cfg.Qwen)
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("%w: gemini api key is empty (set GEMINI_API_KEY)", ErrProviderNotConfigured)
		}
		return newGeminiChatModel(cfg.Gemini, format)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrProviderNotConfigured, cfg.Model.Provider)
	}
}

func createDoubaoModel(ctx context.Context, c config.DoubaoConfig) (einoModel.BaseChatModel, error) {
	logger.Debugf("using doubao model %s", c.Model)

	arkCfg := &ark.ChatModelConfig{
		APIKey: c.APIKey,
		Model:  c.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	}
	if c.BaseURL != "" {
		arkCfg.BaseURL = c.BaseURL
	}
	if c.MaxTokens > 0 {
		arkCfg.MaxTokens = &c.MaxTokens
	}
	if c.Temperature > 0 {
		arkCfg.Temperature = &c.Temperature
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("create doubao model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, c config.QwenConfig) (einoModel.BaseChatModel, error) {
	logger.Debugf("using qwen model %s at %s", c.Model, c.BaseURL)

	httpClient := newProviderHTTPClient(nil, c.DebugRequest)
	httpClient.Timeout = c.Timeout

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		MaxTokens:   &c.MaxTokens,
		Temperature: &c.Temperature,
		TopP:        &c.TopP,
		Timeout:     c.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create qwen model: %w", err)
	}
	return chatModel, nil
}

func newProviderHTTPClient(headers map[string]string, debug bool) *http.Client {
	client := utils.NewHTTPClient(0)
	client.Transport = NewProviderTransport(client.Transport, headers, debug)
	return client
}

// ProviderTransport adds fixed headers to provider calls and, when debug is
// enabled, logs each request with credentials redacted.
type ProviderTransport struct {
	base    http.RoundTripper
	headers map[string]string
	debug   bool
}

func NewProviderTransport(base http.RoundTripper, headers map[string]string, debug bool) *ProviderTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &ProviderTransport{base: base, headers: headers, debug: debug}
}

func (t *ProviderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}
	}
	if t.debug && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.debug {
		logger.Errorf("provider request to %s failed: %v", req.URL.Host, err)
	}
	return resp, err
}

func (t *ProviderTransport) logRequest(req *http.Request) {
	logger.Debugf("provider request %s %s", req.Method, req.URL.String())
	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			logger.Debugf("  %s: [REDACTED]", name)
		} else {
			logger.Debugf("  %s: %s", name, strings.Join(values, ", "))
		}
	}

	if req.Body == nil {
		return
	}
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		logger.Errorf("read provider request body: %v", err)
		return
	}
	// restore the body for the real round trip
	req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	logger.Debugf("  body: %d bytes", len(bodyBytes))
}

func isSensitiveHeader(name string) bool {
	for _, sensitive := range []string{"authorization", "x-api-key", "x-auth-token", "cookie"} {
		if strings.EqualFold(name, sensitive) {
			return true
		}
	}
	return false
}
