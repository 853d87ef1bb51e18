// Package openai provides a model.Provider implementation backed by the
// OpenAI Chat Completions API, grounded on the teacher pack's
// features/model/openai/client.go adapter, using
// github.com/sashabaranov/go-openai. Unlike the teacher's Client, this
// adapter sets response_format to force JSON for GenerateStructured calls,
// since the planner relies on schema-validated JSON output.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentforge/runengine/model"
)

// ChatClient captures the subset of the go-openai client the adapter uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
}

// Provider implements model.Provider via the OpenAI Chat Completions API.
type Provider struct {
	chat  ChatClient
	model string
}

var _ model.Provider = (*Provider)(nil)

// New builds an OpenAI-backed model.Provider.
func New(opts Options) (*Provider, error) {
	if opts.Client == nil {
		return nil, errors.New("openai: client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Provider{chat: opts.Client, model: modelID}, nil
}

// NewFromAPIKey constructs a Provider using the default go-openai HTTP
// client.
func NewFromAPIKey(apiKey, defaultModel string) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), DefaultModel: defaultModel})
}

// Name identifies this provider for pricing lookups and diagnostics.
func (p *Provider) Name() string { return "openai" }

// GenerateText renders a chat completion.
func (p *Provider) GenerateText(ctx context.Context, req model.Request) (model.Response, error) {
	return p.complete(ctx, req, false)
}

// GenerateStructured renders a chat completion with response_format set to
// json_object so the model returns schema-validatable JSON.
func (p *Provider) GenerateStructured(ctx context.Context, req model.Request) (model.Response, error) {
	return p.complete(ctx, req, true)
}

// CreateChatStream is not supported by this adapter; see the anthropic
// adapter's doc comment for why streaming is left unimplemented.
func (p *Provider) CreateChatStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return nil, errors.New("openai: streaming is not implemented by this provider")
}

func (p *Provider) complete(ctx context.Context, req model.Request, forceJSON bool) (model.Response, error) {
	if len(req.Messages) == 0 {
		return model.Response{}, errors.New("openai: messages are required")
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = p.model
	}
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text,
		}
	}
	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if forceJSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	response, err := p.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return model.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(response), nil
}

func translateResponse(resp openai.ChatCompletionResponse) model.Response {
	var text string
	var stop string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		stop = string(resp.Choices[0].FinishReason)
	}
	return model.Response{
		Text: text,
		Usage: model.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		StopReason: stop,
	}
}
