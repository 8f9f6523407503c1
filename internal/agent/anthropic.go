package agent

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = anthropic.ModelClaudeSonnet4_5_20250929
	defaultMaxTokens = 4096
)

type AnthropicConfig struct {
	APIKey    string
	BaseURL   string // Optional, overrides the API endpoint
	Model     anthropic.Model
	MaxTokens int64
	System    string
}

func (c *AnthropicConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("anthropic api key is required")
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.System == "" {
		c.System = SystemPrompt
	}
	return nil
}

// AnthropicLLM implements LLMClient for Anthropic.
type AnthropicLLM struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
}

// NewAnthropicLLM creates an Anthropic LLM client. SDK retries are disabled so a
// failed request surfaces to the caller immediately.
func NewAnthropicLLM(cfg AnthropicConfig) (*AnthropicLLM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicLLM{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		system:    cfg.System,
	}, nil
}

// Call sends a request to Anthropic and returns its response.
func (a *AnthropicLLM) Call(ctx context.Context, req Request) (Response, error) {
	msgs := make([]anthropic.MessageParam, len(req.Messages))
	for i, msg := range req.Messages {
		param, ok := msg.ToParam().(anthropic.MessageParam)
		if !ok {
			return nil, fmt.Errorf("expected anthropic.MessageParam, got %T", msg.ToParam())
		}
		msgs[i] = param
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  msgs,
		Tools:     toAnthropicTools(req.Tools),
	}
	if a.system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Text:         a.system,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			},
		}
	}
	switch req.ToolChoice {
	case "":
	case ToolChoiceNone:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	default:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	return anthropicResponse{resp: resp}, nil
}

// NewUserMessage creates a user message in Anthropic format.
func (a *AnthropicLLM) NewUserMessage(text string) Message {
	return AnthropicMessage{Msg: anthropic.NewUserMessage(anthropic.NewTextBlock(text))}
}

// ConvertToolResults converts tool results to a single Anthropic user message.
func (a *AnthropicLLM) ConvertToolResults(results []ToolResult) ([]Message, error) {
	if len(results) == 0 {
		return nil, nil
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, result := range results {
		blocks = append(blocks, anthropic.NewToolResultBlock(result.ID, result.Content, result.IsError))
	}
	return []Message{AnthropicMessage{Msg: anthropic.NewUserMessage(blocks...)}}, nil
}

// AnthropicMessage wraps Anthropic's MessageParam to implement Message.
type AnthropicMessage struct {
	Msg anthropic.MessageParam
}

func (m AnthropicMessage) ToParam() any {
	return m.Msg
}

// anthropicResponse wraps Anthropic's response to implement Response.
type anthropicResponse struct {
	resp *anthropic.Message
}

func (r anthropicResponse) Content() []ContentBlock {
	blocks := make([]ContentBlock, len(r.resp.Content))
	for i, blk := range r.resp.Content {
		blocks[i] = anthropicContentBlock{blk}
	}
	return blocks
}

func (r anthropicResponse) ToMessage() Message {
	return AnthropicMessage{Msg: r.resp.ToParam()}
}

// anthropicContentBlock wraps Anthropic's ContentBlockUnion to implement ContentBlock.
type anthropicContentBlock struct {
	blk anthropic.ContentBlockUnion
}

func (b anthropicContentBlock) AsText() (string, bool) {
	if b.blk.Type != "text" {
		return "", false
	}
	text := b.blk.AsText()
	if text.Text == "" {
		return "", false
	}
	return text.Text, true
}

func (b anthropicContentBlock) AsToolUse() (string, string, []byte, bool) {
	if b.blk.Type != "tool_use" {
		return "", "", nil, false
	}
	tu := b.blk.AsToolUse()
	if tu.ID == "" || tu.Name == "" {
		return "", "", nil, false
	}
	return tu.ID, tu.Name, tu.Input, true
}

// toAnthropicTools converts tools to Anthropic tool parameters.
func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		props, _ := t.InputSchema["properties"].(map[string]any)
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.Opt(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   requiredFields(t.InputSchema["required"]),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out
}

// requiredFields reads the required list of a JSON schema, which decodes as []any.
func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
