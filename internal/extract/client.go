// Package extract talks to the AI service that turns receipt images and
// spoken descriptions into best-effort transaction guesses.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"fintrack/internal/ingest"
	"fintrack/internal/log"
)

const (
	receiptPrompt = "Extract the following information from this receipt: total amount, date, merchant name, and items purchased. " +
		"Respond with a single JSON object with these fields: amount, date, place, items."
	detailsPrompt = "Extract transaction details from the text. " +
		"Respond with a single JSON object with these fields: amount, category, place, date (in ISO format), description."

	maxAudioBytes = 25 << 20
)

var (
	// ErrUpstream wraps failures of the extraction service itself.
	ErrUpstream = errors.New("extraction service failed")
	// ErrEmptyResult means the service answered without any content.
	ErrEmptyResult = errors.New("extraction service returned no content")
	// ErrAudioTooLarge is returned before any upload is attempted.
	ErrAudioTooLarge = errors.New("audio exceeds 25MB")
)

// Extractor produces raw captures from receipt images and free text.
type Extractor interface {
	AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (ingest.Raw, error)
	ExtractTransactionDetails(ctx context.Context, text string) (ingest.Raw, error)
}

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	VisionModel string
	TextModel   string
	// MaxElapsed bounds all retries of one call; the caller's context still wins.
	MaxElapsed time.Duration
	HTTPClient *http.Client
}

type Client struct {
	api         *openai.Client
	visionModel string
	textModel   string
	maxElapsed  time.Duration
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	c := &Client{
		api:         openai.NewClientWithConfig(oc),
		visionModel: cfg.VisionModel,
		textModel:   cfg.TextModel,
		maxElapsed:  cfg.MaxElapsed,
	}
	if c.visionModel == "" {
		c.visionModel = openai.GPT4oMini
	}
	if c.textModel == "" {
		c.textModel = openai.GPT4oMini
	}
	if c.maxElapsed <= 0 {
		c.maxElapsed = 30 * time.Second
	}
	return c
}

// AnalyzeReceipt asks the vision model for amount, date, place and items.
func (c *Client) AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (ingest.Raw, error) {
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: receiptPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
		MaxTokens:      500,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	return c.completeRaw(ctx, "receipt", req)
}

// ExtractTransactionDetails asks the text model for amount, category, place,
// date and description.
func (c *Client) ExtractTransactionDetails(ctx context.Context, text string) (ingest.Raw, error) {
	req := openai.ChatCompletionRequest{
		Model: c.textModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detailsPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:      200,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	return c.completeRaw(ctx, "details", req)
}

// Transcribe uploads audio to the speech-to-text model. The audio is buffered
// so that a retried upload sends the same bytes.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(audio, maxAudioBytes+1))
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(data) > maxAudioBytes {
		return "", ErrAudioTooLarge
	}
	if filename == "" {
		filename = "audio.wav"
	}

	var text string
	err = c.retry(ctx, "transcribe", func() error {
		resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    openai.Whisper1,
			Reader:   bytes.NewReader(data),
			FilePath: filename,
		})
		if err != nil {
			return err
		}
		text = strings.TrimSpace(resp.Text)
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

func (c *Client) completeRaw(ctx context.Context, op string, req openai.ChatCompletionRequest) (ingest.Raw, error) {
	var content string
	err := c.retry(ctx, op, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrEmptyResult)
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return ingest.Raw{}, err
	}
	content = StripCodeFence(content)
	if content == "" {
		return ingest.Raw{}, ErrEmptyResult
	}
	raw, err := ingest.DecodeRaw([]byte(content))
	if err != nil {
		return ingest.Raw{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return raw, nil
}

// retry runs call with exponential backoff while its error is transient.
func (c *Client) retry(ctx context.Context, op string, call func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 4 * time.Second
	b.MaxElapsedTime = c.maxElapsed

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := call()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) || !isTransient(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "Extraction call failed, retrying",
			log.FieldComponent, log.ComponentExtract,
			log.FieldOperation, op,
			"attempt", attempt,
			"wait", wait.String(),
			log.FieldError, err)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ErrEmptyResult) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}

// isTransient reports whether a failed call may succeed when repeated:
// rate limiting, server errors and network failures.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// StripCodeFence removes a surrounding markdown code fence, with or without
// a language tag, that chat models often wrap JSON in.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
