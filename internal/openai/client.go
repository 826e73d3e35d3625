package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/intellinote/intellinote/internal/domain"
)

const (
	// MaxEmbedBatchSize is the largest input batch the embedding endpoint
	// accepts per request.
	MaxEmbedBatchSize = 10

	networkRetries    = 3
	retryInitialDelay = 500 * time.Millisecond

	ocrPrompt = "Extract all readable text from this PDF page image in its original order. " +
		"Output plain text only. Do not summarize, add, or explain anything."
	visionPrompt = "Describe the meaningful visual content of this image (charts, diagrams, " +
		"figures, tables). Be concise and factual."
)

// API is the subset of the OpenAI-compatible client surface this package
// uses.
type API interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	BaseURL     string
	LLMAPIKey   string
	EmbedAPIKey string
	LLMModel    string
	EmbedModel  string
}

// Client talks to a DashScope-compatible model service for embeddings, text
// classification, OCR, and visual descriptions. Chat and embedding calls can
// carry separate credentials.
type Client struct {
	chatAPI    API
	embedAPI   API
	llmModel   string
	embedModel string
	llmKey     string
	embedKey   string
}

func NewClient(cfg Config) *Client {
	return &Client{
		chatAPI:    newAPI(cfg.LLMAPIKey, cfg.BaseURL),
		embedAPI:   newAPI(cfg.EmbedAPIKey, cfg.BaseURL),
		llmModel:   cfg.LLMModel,
		embedModel: cfg.EmbedModel,
		llmKey:     cfg.LLMAPIKey,
		embedKey:   cfg.EmbedAPIKey,
	}
}

func newAPI(apiKey, baseURL string) API {
	c := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(c)
}

// Enabled reports whether the vision/chat side has credentials.
func (c *Client) Enabled() bool {
	return c.llmKey != ""
}

// EmbedModel returns the configured embedding model name, the cache identity
// for stored vectors.
func (c *Client) EmbedModel() string {
	return c.embedModel
}

// EmbedBatch embeds up to MaxEmbedBatchSize texts in one request. The
// response is index-tagged; vectors are returned in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > MaxEmbedBatchSize {
		return nil, fmt.Errorf("embedding batch of %d exceeds limit %d", len(texts), MaxEmbedBatchSize)
	}
	if c.embedKey == "" {
		return nil, fmt.Errorf("%w: no embedding credentials configured", domain.ErrRemoteAuth)
	}

	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.embedAPI.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.embedModel),
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return vectors, nil
}

// Classify sends a single-turn prompt and returns the model's raw reply.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.chatAPI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.llmModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("classification returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ExtractPageText performs OCR on a rendered page image.
func (c *Client) ExtractPageText(ctx context.Context, png []byte, pageNumber int) (string, error) {
	text, err := c.describe(ctx, png, ocrPrompt)
	if err != nil {
		return "", fmt.Errorf("ocr for page %d failed: %w", pageNumber, err)
	}
	return text, nil
}

// DescribeImage asks the vision model for a description of the image.
func (c *Client) DescribeImage(ctx context.Context, png []byte) (string, error) {
	return c.describe(ctx, png, visionPrompt)
}

func (c *Client) describe(ctx context.Context, png []byte, prompt string) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.chatAPI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.llmModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
						{Type: openai.ChatMessagePartTypeText, Text: prompt},
					},
				},
			},
		})
		return callErr
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision request returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// withRetry runs op with bounded exponential backoff. Transient failures
// (429, 5xx, network errors) are retried; auth and other client errors fail
// immediately.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	backoff := retry.WithMaxRetries(networkRetries, retry.NewExponential(retryInitialDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op()
		if err == nil {
			return nil
		}
		classified, retryable := classifyCallError(err)
		if retryable {
			return retry.RetryableError(classified)
		}
		return classified
	})
}

func classifyCallError(err error) (classified error, retryable bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return fmt.Errorf("%w: %v", domain.ErrRemoteAuth, err), false
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err), true
		default:
			return err, false
		}
	}

	if errors.Is(err, context.Canceled) {
		return err, false
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err), true
	}

	// Unrecognized transport failures get one more chance.
	return fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err), true
}
