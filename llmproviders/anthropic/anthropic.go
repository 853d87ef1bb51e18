// Package anthropic provides a model.Provider implementation backed by the
// Anthropic Claude Messages API, grounded on the teacher pack's
// features/model/anthropic/client.go adapter: a narrow MessagesClient
// interface sits between Provider and the concrete SDK client so callers
// can substitute a fake in tests, and request/response translation mirrors
// the teacher's prepareRequest/translateResponse split, narrowed to plain
// text messages since the run engine's agents do not issue tool calls
// through the gateway.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentforge/runengine/model"
)

// MessagesClient captures the subset of the Anthropic SDK client the
// adapter uses, satisfied by *sdk.MessageService or a test double.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures optional Anthropic adapter behavior.
type Options struct {
	// DefaultModel is used when a Request leaves Model empty.
	DefaultModel string
	// MaxTokens sets the completion cap when a request does not specify one.
	MaxTokens int
	// Temperature is used when a request does not specify one.
	Temperature float64
}

// Provider implements model.Provider on top of Anthropic Claude Messages.
type Provider struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

var _ model.Provider = (*Provider)(nil)

// New builds an Anthropic-backed model.Provider from the given Messages
// client and configuration.
func New(msg MessagesClient, opts Options) (*Provider, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	return &Provider{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a Provider using the default Anthropic HTTP
// client, authenticating with apiKey via option.WithAPIKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Name identifies this provider for pricing lookups and diagnostics.
func (p *Provider) Name() string { return "anthropic" }

// GenerateText issues a non-streaming Messages.New request.
func (p *Provider) GenerateText(ctx context.Context, req model.Request) (model.Response, error) {
	return p.complete(ctx, req)
}

// GenerateStructured issues the same call as GenerateText; the system
// prompt supplied by callers (the planner) is responsible for instructing
// the model to emit JSON, since Anthropic has no native structured-output
// mode comparable to OpenAI's response_format.
func (p *Provider) GenerateStructured(ctx context.Context, req model.Request) (model.Response, error) {
	return p.complete(ctx, req)
}

// CreateChatStream is not supported by this adapter; the run engine's
// agents and planner only ever call GenerateText/GenerateStructured, so
// streaming is left unimplemented rather than half-grounded on a code path
// nothing exercises.
func (p *Provider) CreateChatStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return nil, errors.New("anthropic: streaming is not implemented by this provider")
}

func (p *Provider) complete(ctx context.Context, req model.Request) (model.Response, error) {
	params, err := p.prepareRequest(req)
	if err != nil {
		return model.Response{}, err
	}
	msg, err := p.msg.New(ctx, *params)
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func (p *Provider) prepareRequest(req model.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = p.defaultModel
	}
	msgs, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = p.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	return &params, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Text})
		case model.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Text)))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func translateResponse(msg *sdk.Message) model.Response {
	resp := model.Response{}
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	resp.Text = text
	resp.StopReason = string(msg.StopReason)
	u := msg.Usage
	resp.Usage = model.TokenUsage{
		PromptTokens:     int(u.InputTokens),
		CompletionTokens: int(u.OutputTokens),
		TotalTokens:      int(u.InputTokens + u.OutputTokens),
	}
	return resp
}
