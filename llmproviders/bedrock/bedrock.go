// Package bedrock provides a model.Provider implementation backed by the
// AWS Bedrock Converse API, grounded on the teacher pack's
// features/model/bedrock/client.go adapter: a narrow RuntimeClient
// interface stands in for *bedrockruntime.Client so tests can supply a
// fake, and request/response translation is narrowed to plain text
// messages since the run engine's agents issue no tool calls through the
// gateway.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentforge/runengine/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client
// required by the adapter, satisfied by *bedrockruntime.Client or a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	Runtime      RuntimeClient
	DefaultModel string
	MaxTokens    int
	Temperature  float32
}

// Provider implements model.Provider on top of AWS Bedrock Converse.
type Provider struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int
	temperature  float32
}

var _ model.Provider = (*Provider)(nil)

// New builds a Bedrock-backed model.Provider.
func New(opts Options) (*Provider, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Provider{
		runtime:      opts.Runtime,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Name identifies this provider for pricing lookups and diagnostics.
func (p *Provider) Name() string { return "bedrock" }

// GenerateText issues a Converse request and translates the response.
func (p *Provider) GenerateText(ctx context.Context, req model.Request) (model.Response, error) {
	return p.complete(ctx, req)
}

// GenerateStructured issues the same Converse call; the system prompt
// supplied by callers is responsible for instructing the model to emit
// JSON, since Converse has no dedicated structured-output mode.
func (p *Provider) GenerateStructured(ctx context.Context, req model.Request) (model.Response, error) {
	return p.complete(ctx, req)
}

// CreateChatStream is not supported by this adapter; see the anthropic
// adapter's doc comment for why streaming is left unimplemented.
func (p *Provider) CreateChatStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return nil, errors.New("bedrock: streaming is not implemented by this provider")
}

func (p *Provider) complete(ctx context.Context, req model.Request) (model.Response, error) {
	input, err := p.buildInput(req)
	if err != nil {
		return model.Response{}, err
	}
	output, err := p.runtime.Converse(ctx, input)
	if err != nil {
		return model.Response{}, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateResponse(output)
}

func (p *Provider) buildInput(req model.Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = p.defaultModel
	}
	messages, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if cfg := p.inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input, nil
}

func (p *Provider) inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := maxTokens
	if tokens <= 0 {
		tokens = p.maxTokens
	}
	if tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens))
	}
	t := temp
	if t <= 0 {
		t = p.temperature
	}
	if t > 0 {
		cfg.Temperature = aws.Float32(t)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func encodeMessages(msgs []model.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0, len(msgs))

	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text})
		case model.RoleUser:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
			})
		case model.RoleAssistant:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
			})
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func translateResponse(output *bedrockruntime.ConverseOutput) (model.Response, error) {
	if output == nil {
		return model.Response{}, errors.New("bedrock: response is nil")
	}
	resp := model.Response{}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		var text string
		for _, block := range msg.Value.Content {
			if v, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += v.Value
			}
		}
		resp.Text = text
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.TokenUsage{
			PromptTokens:     int(ptrValue(usage.InputTokens)),
			CompletionTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:      int(ptrValue(usage.TotalTokens)),
		}
	}
	resp.StopReason = string(output.StopReason)
	return resp, nil
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}
