// Package model defines the provider-agnostic request/response types shared
// by the Planner, Agents, and the LLMGateway. Provider adapters (Anthropic,
// OpenAI, Bedrock) translate these into their own SDK types and translate
// responses back.
package model

import (
	"context"
	"encoding/json"
	"io"
)

// ConversationRole identifies the speaker for a Message.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

type (
	// Message is a single chat message in a transcript.
	Message struct {
		Role ConversationRole
		Text string
	}

	// TokenUsage tracks token counts for a single provider call.
	TokenUsage struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}

	// Request captures the inputs for a single model invocation.
	Request struct {
		// RunID identifies the logical run issuing this request, threaded
		// through for cost attribution and tracing.
		RunID string
		// Provider and Model together select the target; both must be set
		// or both empty (partial override is rejected, see llm.Gateway's
		// resolveTarget).
		Provider string
		Model    string
		Messages []Message
		Temperature float32
		MaxTokens   int
		// ResponseSchema, when non-nil, carries the schema a structured/JSON
		// response is expected to match. The provider adapters do not read
		// it; the caller validates the response itself (the planner does).
		ResponseSchema json.RawMessage
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Text  string
		Usage TokenUsage
		// Cost, when the provider reports it directly (pricingSource =
		// "provider"), is the dollar cost of this call. HasCost reports
		// whether the provider set it; when HasCost is false the
		// PricingResolver looks the cost up instead.
		Cost      float64
		HasCost   bool
		StopReason string
	}

	// ChunkType classifies a streaming Chunk.
	ChunkType string

	// Chunk is a single streaming event from a model call.
	Chunk struct {
		Type       ChunkType
		TextDelta  string
		UsageDelta *TokenUsage
		StopReason string
	}

	// Streamer yields Chunks for a streaming invocation, terminating with
	// io.EOF.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}

	// Provider is the provider-agnostic model client. Implementations wrap
	// a concrete SDK (Anthropic, OpenAI, Bedrock) and translate Request to
	// the provider's wire format.
	Provider interface {
		// Name identifies the provider for pricing lookups and diagnostics
		// (e.g. "anthropic", "openai", "bedrock").
		Name() string
		GenerateText(ctx context.Context, req Request) (Response, error)
		GenerateStructured(ctx context.Context, req Request) (Response, error)
		CreateChatStream(ctx context.Context, req Request) (Streamer, error)
	}
)

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeUsage ChunkType = "usage"
	ChunkTypeStop  ChunkType = "stop"
)

// ErrStreamClosed is returned by Streamer.Recv after Close has been called.
var ErrStreamClosed = io.ErrClosedPipe
