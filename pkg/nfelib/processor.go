package nfelib

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-entry/internal/allocation"
	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/entry"
	"github.com/rezonia/nfe-entry/internal/llm"
	"github.com/rezonia/nfe-entry/internal/model"
	"github.com/rezonia/nfe-entry/internal/parser/nfe"
	"github.com/rezonia/nfe-entry/internal/processor"
)

// ExtractionResult represents extraction result with metadata
type ExtractionResult struct {
	Invoice     *model.ParsedInvoice
	Confidence  float64
	Method      string
	Warnings    []string
	NeedsReview bool
}

// PipelineOptions configures pipeline behavior
type PipelineOptions struct {
	// Results below this confidence are flagged for review (default: 0.70)
	ReviewThreshold float64

	// LLM Configuration
	LLMAPIKey      string // API key (env: LLM_API_KEY)
	LLMBaseURL     string // Base URL (env: LLM_BASE_URL)
	LLMModel       string // Text extraction model (env: LLM_MODEL)
	LLMVisionModel string // Vision/image extraction model (env: LLM_VISION_MODEL)

	EnableLLM bool
}

// DefaultPipelineOptions returns default pipeline options
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		ReviewThreshold: 0.70,
		EnableLLM:       true,
		LLMBaseURL:      llm.DefaultBaseURL,
	}
}

// Processor imports NF-e documents through the internal pipeline
type Processor struct {
	pipeline *processor.Pipeline
	options  PipelineOptions
}

// NewProcessor creates a new invoice processor with the given options
func NewProcessor(opts PipelineOptions) *Processor {
	var pipelineOpts []processor.Option
	if opts.EnableLLM && opts.LLMAPIKey != "" {
		var clientOpts []llm.ClientOption
		if opts.LLMBaseURL != "" {
			clientOpts = append(clientOpts, llm.WithBaseURL(opts.LLMBaseURL))
		}
		client := llm.NewClient(opts.LLMAPIKey, clientOpts...)

		var extractorOpts []llm.ExtractorOption
		if opts.LLMModel != "" {
			extractorOpts = append(extractorOpts, llm.WithModel(opts.LLMModel))
		}
		if opts.LLMVisionModel != "" {
			extractorOpts = append(extractorOpts, llm.WithVisionModel(opts.LLMVisionModel))
		}
		pipelineOpts = append(pipelineOpts, processor.WithLLMExtractor(llm.NewExtractor(client, extractorOpts...)))
	}

	return &Processor{
		pipeline: processor.NewPipeline(pipelineOpts...),
		options:  opts,
	}
}

// NewDefaultProcessor creates a processor with default options
func NewDefaultProcessor() *Processor {
	return NewProcessor(DefaultPipelineOptions())
}

// Process detects the input format and extracts the invoice
func (p *Processor) Process(ctx context.Context, r io.Reader) (*ExtractionResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.SourceUnknown, "", "failed to read input", err)
	}
	return p.wrap(p.pipeline.Process(ctx, data, ""))
}

// ProcessXML processes NF-e XML input directly
func (p *Processor) ProcessXML(ctx context.Context, r io.Reader) (*ExtractionResult, error) {
	return p.wrap(p.pipeline.ProcessXML(ctx, r))
}

// ProcessImage processes a DANFE image through the LLM
func (p *Processor) ProcessImage(ctx context.Context, imageData []byte, mimeType string) (*ExtractionResult, error) {
	return p.wrap(p.pipeline.ProcessImage(ctx, imageData, mimeType))
}

// ProcessBatch processes multiple inputs concurrently. Results keep input
// order; a failed input leaves a nil slot and the first error is returned.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []io.Reader) ([]*ExtractionResult, error) {
	results := make([]*ExtractionResult, len(inputs))
	errCh := make(chan error, len(inputs))

	for i, input := range inputs {
		go func(idx int, r io.Reader) {
			result, err := p.Process(ctx, r)
			if err != nil {
				errCh <- err
				return
			}
			results[idx] = result
			errCh <- nil
		}(i, input)
	}

	var firstErr error
	for range inputs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}

func (p *Processor) wrap(result *processor.Result) (*ExtractionResult, error) {
	if result.Error != nil {
		return nil, result.Error
	}
	return &ExtractionResult{
		Invoice:     result.Invoice,
		Confidence:  result.Confidence,
		Method:      string(result.Method),
		Warnings:    result.Warnings,
		NeedsReview: result.Confidence < p.options.ReviewThreshold,
	}, nil
}

// ParseNFe extracts an NF-e document without the pipeline's checks
func ParseNFe(data []byte) (*ParsedInvoice, error) {
	return nfe.NewExtractor().ParseBytes(data)
}

// NewDraft starts an empty purchase entry dated today
func NewDraft(today time.Time) *Draft {
	return entry.NewDraft(today)
}

// Allocate computes the rateio of costs across items
func Allocate(items []LineItem, costs ExtraCosts) Allocation {
	return allocation.Compute(items, costs)
}

// AllocateInvoice seeds the allocation from a parsed invoice: its items,
// its freight and the tax percent inferred from its declared taxes
func AllocateInvoice(inv *ParsedInvoice) Allocation {
	return allocation.Compute(allocation.ItemsFromInvoice(inv), model.ExtraCosts{
		Freight:    inv.FreightCost,
		TaxPercent: allocation.InferFromInvoice(inv),
	})
}

// InferTaxPercent returns totalTax as a 0-100 percentage of subtotal
func InferTaxPercent(subtotal, totalTax decimal.Decimal) decimal.Decimal {
	return allocation.InferTaxPercent(subtotal, totalTax)
}

// FormatBRL renders an amount as Brazilian Real, e.g. "R$ 1.234,56"
func FormatBRL(d decimal.Decimal) string {
	return money.FormatBRL(d)
}
