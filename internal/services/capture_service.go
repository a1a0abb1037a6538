package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/extract"
	"fintrack/internal/ingest"
	"fintrack/internal/log"
)

var (
	// ErrCaptureDisabled is returned when no extraction service is configured.
	ErrCaptureDisabled = errors.New("receipt and voice capture are not configured")
	ErrEmptyCapture    = errors.New("capture is empty")
)

// CaptureService turns receipts, recordings and free text into drafts the
// user confirms before they are recorded.
type CaptureService struct {
	extractor   extract.Extractor
	transcriber extract.Transcriber
	normalizer  *ingest.Normalizer
	timeout     time.Duration
}

func NewCaptureService(extractor extract.Extractor, transcriber extract.Transcriber, normalizer *ingest.Normalizer, timeout time.Duration) *CaptureService {
	if normalizer == nil {
		normalizer = ingest.NewNormalizer()
	}
	return &CaptureService{
		extractor:   extractor,
		transcriber: transcriber,
		normalizer:  normalizer,
		timeout:     timeout,
	}
}

func (s *CaptureService) Enabled() bool {
	return s.extractor != nil
}

// withTimeout bounds one capture so an abandoned request stops its upstream calls.
func (s *CaptureService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Receipt analyzes a receipt image.
func (s *CaptureService) Receipt(ctx context.Context, image []byte, mimeType string) (ingest.Draft, error) {
	if s.extractor == nil {
		return ingest.Draft{}, ErrCaptureDisabled
	}
	if len(image) == 0 {
		return ingest.Draft{}, ErrEmptyCapture
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.extractor.AnalyzeReceipt(ctx, image, mimeType)
	if err != nil {
		return ingest.Draft{}, fmt.Errorf("analyze receipt: %w", err)
	}
	d := s.normalizer.Normalize(ctx, ingest.SourceReceipt, raw)
	s.logCapture(ctx, d)
	return d, nil
}

// Voice transcribes a recording and extracts transaction details from it.
func (s *CaptureService) Voice(ctx context.Context, audio io.Reader, filename string) (ingest.Draft, error) {
	if s.extractor == nil || s.transcriber == nil {
		return ingest.Draft{}, ErrCaptureDisabled
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	text, err := s.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return ingest.Draft{}, fmt.Errorf("transcribe audio: %w", err)
	}
	d, err := s.fromText(ctx, ingest.SourceVoice, text)
	if err != nil {
		return ingest.Draft{}, err
	}
	d.Transcript = text
	return d, nil
}

// Text extracts transaction details from an already transcribed sentence.
func (s *CaptureService) Text(ctx context.Context, text string) (ingest.Draft, error) {
	if s.extractor == nil {
		return ingest.Draft{}, ErrCaptureDisabled
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.fromText(ctx, ingest.SourceVoice, text)
	if err != nil {
		return ingest.Draft{}, err
	}
	d.Transcript = strings.TrimSpace(text)
	return d, nil
}

func (s *CaptureService) fromText(ctx context.Context, source ingest.Source, text string) (ingest.Draft, error) {
	if strings.TrimSpace(text) == "" {
		return ingest.Draft{}, ErrEmptyCapture
	}
	raw, err := s.extractor.ExtractTransactionDetails(ctx, text)
	if err != nil {
		return ingest.Draft{}, fmt.Errorf("extract transaction details: %w", err)
	}
	d := s.normalizer.Normalize(ctx, source, raw)
	s.logCapture(ctx, d)
	return d, nil
}

func (s *CaptureService) logCapture(ctx context.Context, d ingest.Draft) {
	slog.InfoContext(ctx, "Capture normalized",
		log.FieldComponent, log.ComponentIngest,
		log.FieldOperation, log.OpCapture,
		log.FieldSource, string(d.Source),
		log.FieldAmountCents, d.Amount.Cents,
		log.FieldCategory, d.Category,
		"defaulted", len(d.Defaulted))
}
