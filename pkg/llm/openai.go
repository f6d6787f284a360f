// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/jllopis/heuris/pkg/errors"
)

// OpenAIProvider implements Provider against any OpenAI-compatible endpoint
// (OpenAI, OpenRouter, a local Ollama /v1 gateway).
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// OpenAIOption configures the OpenAIProvider.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	model      string
	baseURL    string
	apiKey     string
	apiKeyEnv  string
	reqOptions []option.RequestOption
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithBaseURL sets a custom base URL (for OpenRouter or other proxies).
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithAPIKey sets the API key explicitly.
func WithAPIKey(apiKey string) OpenAIOption {
	return func(c *openAIConfig) { c.apiKey = apiKey }
}

// WithAPIKeyEnv reads the API key from the named environment variable.
func WithAPIKeyEnv(name string) OpenAIOption {
	return func(c *openAIConfig) { c.apiKeyEnv = name }
}

// NewOpenAI creates a new provider. Without options the API key comes from
// OPENAI_API_KEY and the default OpenAI endpoint is used.
func NewOpenAI(opts ...OpenAIOption) *OpenAIProvider {
	cfg := &openAIConfig{model: "gpt-5-mini"}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.apiKey == "" && cfg.apiKeyEnv != "" {
		cfg.apiKey = os.Getenv(cfg.apiKeyEnv)
	}
	if cfg.apiKey != "" {
		cfg.reqOptions = append(cfg.reqOptions, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		cfg.reqOptions = append(cfg.reqOptions, option.WithBaseURL(cfg.baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(cfg.reqOptions...),
		model:  cfg.model,
	}
}

// Chat implements Provider. Rate-limit responses are wrapped in a typed
// RATE_LIMITED error so the run-loop can apply its bounded retry.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, convertTool(tool))
		}
		params.Tools = tools
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if stderrors.As(err, &apierr) && apierr.StatusCode == 429 {
			return nil, errors.New(errors.CodeRateLimit, "chat completion rate limited", err).
				WithRecoverable(true)
		}
		return nil, errors.New(errors.CodeLLMError, "chat completion failed", err)
	}

	return convertResponse(completion), nil
}

func convertMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.Content)
	case RoleUser:
		return openai.UserMessage(msg.Content)
	case RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			assistantMsg := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: toolCalls,
			}
			if msg.Content != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(msg.Content),
				}
			}
			return openai.ChatCompletionMessageParamUnion{
				OfAssistant: &assistantMsg,
			}
		}
		return openai.AssistantMessage(msg.Content)
	case RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	default:
		return openai.UserMessage(msg.Content)
	}
}

func convertTool(tool Tool) openai.ChatCompletionToolParam {
	paramsJSON, _ := json.Marshal(tool.Function.Parameters)
	var params openai.FunctionParameters
	json.Unmarshal(paramsJSON, &params)

	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  params,
		},
	}
}

func convertResponse(completion *openai.ChatCompletion) *ChatResponse {
	resp := &ChatResponse{
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}

	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		resp.Content = choice.Message.Content

		if len(choice.Message.ToolCalls) > 0 {
			resp.ToolCalls = make([]ToolCall, 0, len(choice.Message.ToolCalls))
			for _, tc := range choice.Message.ToolCalls {
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:   tc.ID,
					Type: ToolTypeFunction,
					Function: FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		}
	}

	return resp
}

var _ Provider = (*OpenAIProvider)(nil)
