package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/profile-agent/internal/config"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/ratelimit"
)

// Client wraps the Anthropic SDK client
type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewClient creates a new Anthropic client
func NewClient(cfg config.AnthropicConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	return &Client{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		rateLimiter: limiter,
		log:         log.WithComponent("ai"),
	}
}

// PostRequest describes the business context for a generated post.
type PostRequest struct {
	BusinessName string
	LocationName string
	WebsiteURL   string
	Category     string
	Keywords     []string
	NewsHook     string // optional topical angle from an industry feed
}

// GeneratedPost is the structured generation result.
type GeneratedPost struct {
	Summary         string `json:"summary"`
	SuggestedAction string `json:"suggested_action"` // learn_more, book, order, buy, sign_up, call, none
}

// GeneratePost creates local post text for a business.
func (c *Client) GeneratePost(ctx context.Context, req PostRequest) (*GeneratedPost, error) {
	user := fmt.Sprintf(postUserPrompt,
		req.BusinessName,
		req.LocationName,
		req.Category,
		strings.Join(req.Keywords, ", "),
		req.WebsiteURL,
	)
	if req.NewsHook != "" {
		user += fmt.Sprintf(newsHookSuffix, req.NewsHook)
	}

	response, err := c.complete(ctx, postSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var post GeneratedPost
	if err := json.Unmarshal([]byte(extractJSON(response)), &post); err != nil {
		return nil, fmt.Errorf("failed to parse generated post: %w", err)
	}
	if post.Summary == "" {
		return nil, fmt.Errorf("generation returned empty post text")
	}
	return &post, nil
}

// GenerateReply creates an owner reply to a customer review.
func (c *Client) GenerateReply(ctx context.Context, businessName, reviewerName string, rating int, comment string) (string, error) {
	user := fmt.Sprintf(replyUserPrompt, businessName, reviewerName, rating, comment)

	response, err := c.complete(ctx, replySystemPrompt, user)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(response)
	if reply == "" {
		return "", fmt.Errorf("generation returned empty reply text")
	}
	return reply, nil
}

// complete sends a message to Claude and returns the response text
func (c *Client) complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterAnthropic); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	c.log.Debug().
		Str("model", c.model).
		Int("max_tokens", c.maxTokens).
		Msg("Sending request to Claude")

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		},
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(userMessage),
				},
			},
		},
	})

	if err != nil {
		c.log.Error().Err(err).Msg("Claude API error")
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var response string
	for _, block := range message.Content {
		textBlock := block.AsText()
		if textBlock.Text != "" {
			response += textBlock.Text
		}
	}

	c.log.Debug().
		Int("input_tokens", int(message.Usage.InputTokens)).
		Int("output_tokens", int(message.Usage.OutputTokens)).
		Msg("Received Claude response")

	return response, nil
}

// extractJSON strips markdown fences the model sometimes wraps around
// JSON output.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	return strings.TrimSpace(response)
}
