// Package processor orchestrates invoice imports: it detects the input
// format, runs the matching extractor and reports one result per attempt.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/nfe-entry/internal/llm"
	"github.com/rezonia/nfe-entry/internal/metrics"
	"github.com/rezonia/nfe-entry/internal/model"
	"github.com/rezonia/nfe-entry/internal/parser/nfe"
)

// UserMessage is the only failure text shown to end users for an import
const UserMessage = "não foi possível processar o XML"

// Format is a detected input format
type Format int

const (
	FormatUnknown Format = iota
	FormatXML
	FormatPDF
	FormatImage
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatPDF:
		return "pdf"
	case FormatImage:
		return "image"
	default:
		return "unknown"
	}
}

// ExtractionMethod records how an invoice was extracted
type ExtractionMethod string

const (
	MethodXML       ExtractionMethod = "xml"
	MethodLLMText   ExtractionMethod = "llm_text"
	MethodLLMVision ExtractionMethod = "llm_vision"
)

// Result is the outcome of one import attempt
type Result struct {
	Invoice    *model.ParsedInvoice `json:"invoice,omitempty"`
	Method     ExtractionMethod     `json:"method"`
	Confidence float64              `json:"confidence"`
	Warnings   []string             `json:"warnings,omitempty"`
	Error      error                `json:"-"`
}

// Pipeline runs imports
type Pipeline struct {
	xml     *nfe.Extractor
	llm     *llm.Extractor
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the pipeline
type Option func(*Pipeline)

// WithLLMExtractor enables DANFE image and text extraction
func WithLLMExtractor(e *llm.Extractor) Option {
	return func(p *Pipeline) {
		p.llm = e
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records import counters and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock sets the clock used as "today" for invoices without a date
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.xml = nfe.NewExtractor(nfe.WithClock(p.now))
	return p
}

// HasLLM reports whether an LLM extractor is configured
func (p *Pipeline) HasLLM() bool {
	return p.llm != nil
}

// Process detects the format of data and dispatches to the matching path
func (p *Pipeline) Process(ctx context.Context, data []byte, mimeType string) *Result {
	switch DetectFormat(data) {
	case FormatXML:
		return p.ProcessXMLBytes(ctx, data)
	case FormatImage:
		if mimeType == "" {
			mimeType = DetectMimeType(data)
		}
		return p.ProcessImage(ctx, data, mimeType)
	default:
		return &Result{Method: MethodXML, Error: model.NewParseError(model.SourceUnknown, "content", "unsupported format", nil)}
	}
}

// ProcessXML reads and extracts an NF-e document
func (p *Pipeline) ProcessXML(ctx context.Context, r io.Reader) *Result {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Result{Method: MethodXML, Error: fmt.Errorf("XML parsing failed: %w", err)}
	}
	return p.ProcessXMLBytes(ctx, data)
}

// ProcessXMLBytes extracts an NF-e document. A document that yields neither
// an invoice number nor any item fails with model.ErrEmptyInvoice.
func (p *Pipeline) ProcessXMLBytes(ctx context.Context, data []byte) *Result {
	start := time.Now()
	result := &Result{Method: MethodXML}

	inv, err := p.xml.Parse(ctx, bytes.NewReader(data))
	switch {
	case err != nil:
		result.Error = fmt.Errorf("XML parsing failed: %w", err)
	case inv.IsEmpty():
		result.Error = fmt.Errorf("XML parsing failed: %w", model.ErrEmptyInvoice)
	default:
		result.Invoice = inv
		result.Confidence = 1.0
		result.Warnings = Check(inv)
	}

	p.finish(result, start)
	return result
}

// ProcessImage extracts invoice data from a DANFE image through the LLM
func (p *Pipeline) ProcessImage(ctx context.Context, data []byte, mimeType string) *Result {
	start := time.Now()
	result := &Result{Method: MethodLLMVision}
	if p.llm == nil {
		result.Error = errors.New("LLM extractor not configured")
		return result
	}

	inv, err := p.llm.ExtractFromImage(ctx, data, mimeType)
	p.completeLLM(result, inv, err)
	p.finish(result, start)
	return result
}

// ProcessText extracts invoice data from DANFE text through the LLM
func (p *Pipeline) ProcessText(ctx context.Context, text string) *Result {
	start := time.Now()
	result := &Result{Method: MethodLLMText}
	if p.llm == nil {
		result.Error = errors.New("LLM extractor not configured")
		return result
	}

	inv, err := p.llm.ExtractFromText(ctx, text)
	p.completeLLM(result, inv, err)
	p.finish(result, start)
	return result
}

func (p *Pipeline) completeLLM(result *Result, inv *model.ParsedInvoice, err error) {
	switch {
	case err != nil:
		result.Error = err
	case inv.IsEmpty():
		result.Error = model.NewExtractionError(string(result.Method), "nothing extracted", model.ErrEmptyInvoice)
	default:
		result.Invoice = inv
		result.Warnings = Check(inv)
		result.Confidence = confidence(result.Warnings)
	}
}

func (p *Pipeline) finish(result *Result, start time.Time) {
	elapsed := time.Since(start)
	outcome := metrics.ResultOK
	switch {
	case errors.Is(result.Error, model.ErrEmptyInvoice):
		outcome = metrics.ResultEmpty
	case model.IsInputError(result.Error):
		outcome = metrics.ResultInvalid
	case result.Error != nil:
		outcome = metrics.ResultFailed
	}
	p.metrics.ObserveImport(outcome, elapsed)

	if result.Error != nil {
		p.logger.Warn("import failed",
			zap.String("method", string(result.Method)),
			zap.Duration("elapsed", elapsed),
			zap.Error(result.Error))
		return
	}
	p.logger.Info("import succeeded",
		zap.String("method", string(result.Method)),
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.Int("items", len(result.Invoice.Items)),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", elapsed))
}

// LLM results start at 0.9 and lose 0.1 per warning, floored at 0.5
func confidence(warnings []string) float64 {
	c := 0.9 - 0.1*float64(len(warnings))
	if c < 0.5 {
		return 0.5
	}
	return c
}
