package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-entry/internal/llm"
	"github.com/rezonia/nfe-entry/internal/model"
)

// fakeChatter returns a canned response and records the prompts it saw
type fakeChatter struct {
	response   string
	err        error
	lastModel  string
	lastPrompt string
	lastMime   string
}

func (f *fakeChatter) ChatText(_ context.Context, model, _, userPrompt string) (string, error) {
	f.lastModel = model
	f.lastPrompt = userPrompt
	return f.response, f.err
}

func (f *fakeChatter) ChatWithImage(_ context.Context, model, _, userPrompt string, _ []byte, mimeType string) (string, error) {
	f.lastModel = model
	f.lastPrompt = userPrompt
	f.lastMime = mimeType
	return f.response, f.err
}

const danfeResponse = "Segue a nota:\n```json\n" + `{
	"invoice_number": "123",
	"invoice_key": "3524 0312 3456 7800 0190 5500 1000 0001 2310 0000 1234",
	"series": "1",
	"date": "2024-03-10",
	"supplier": {
		"name": "Distribuidora Exemplo LTDA",
		"document": "12.345.678/0001-90"
	},
	"items": [
		{"number": 1, "code": "P001", "name": "Parafuso sextavado", "ncm": "7318.15.00", "quantity": 2, "unit_cost": 10},
		{"name": "Arruela lisa", "quantity": "1,000", "unit_cost": "R$ 30,00"},
		{"name": "Brinde", "quantity": 0, "unit_cost": 0}
	],
	"freight": 5,
	"taxes": {"icms": 6, "icms_st": "1,00", "ipi": 0.5, "pis": 0.33, "cofins": 1.52, "other": null},
	"invoice_total": "56,50",
	"installments": [{"number": "001", "due_date": "2024-04-10", "amount": 28.25}]
}` + "\n```"

func TestNewClient(t *testing.T) {
	client := llm.NewClient("test-api-key")
	require.NotNil(t, client)
}

func TestNewClient_WithOptions(t *testing.T) {
	client := llm.NewClient("test-api-key",
		llm.WithBaseURL("https://custom.api.com/v1"),
		llm.WithDefaultModel(llm.ModelGPT4o),
		llm.WithTimeout(10*time.Second),
	)
	require.NotNil(t, client)
}

func TestExtractor_ExtractFromText(t *testing.T) {
	chatter := &fakeChatter{response: danfeResponse}
	extractor := llm.NewExtractor(chatter, llm.WithModel(llm.ModelGPT4oMini))

	inv, err := extractor.ExtractFromText(context.Background(), "DANFE 123 ...")
	require.NoError(t, err)

	assert.Equal(t, llm.ModelGPT4oMini, chatter.lastModel)
	assert.Contains(t, chatter.lastPrompt, "DANFE 123 ...")

	assert.Equal(t, model.SourceLLM, inv.Source)
	assert.Equal(t, "123", inv.InvoiceNumber)
	assert.Equal(t, "35240312345678000190550010000001231000001234", inv.InvoiceKey)
	assert.Equal(t, "12345678000190", inv.SupplierDoc)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), inv.EntryDate)

	require.Len(t, inv.Items, 2)
	assert.Equal(t, "73181500", inv.Items[0].NCM)
	assert.Equal(t, "P001", inv.Items[0].SKU)
	assert.Equal(t, 2, inv.Items[1].Number)
	assert.True(t, inv.Items[1].Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, inv.Items[1].UnitCost.Equal(decimal.NewFromInt(30)))

	assert.True(t, inv.FreightCost.Equal(decimal.NewFromInt(5)))
	assert.True(t, inv.TotalTax.Equal(decimal.RequireFromString("9.35")), "tax %s", inv.TotalTax)
	assert.True(t, inv.InvoiceTotal.Equal(decimal.RequireFromString("56.5")))
	require.Len(t, inv.Installments, 1)
	assert.Equal(t, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), inv.Installments[0].DueDate)
}

func TestExtractor_ExtractFromImage(t *testing.T) {
	chatter := &fakeChatter{response: `{"invoice_number": "9", "items": []}`}
	today := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	extractor := llm.NewExtractor(chatter,
		llm.WithModel(llm.ModelGPT4oMini),
		llm.WithVisionModel(llm.ModelGPT4o),
		llm.WithClock(func() time.Time { return today }),
	)

	inv, err := extractor.ExtractFromImage(context.Background(), []byte{0x89, 0x50}, "image/png")
	require.NoError(t, err)

	assert.Equal(t, llm.ModelGPT4o, chatter.lastModel)
	assert.Equal(t, "image/png", chatter.lastMime)
	assert.Equal(t, "9", inv.InvoiceNumber)
	assert.Empty(t, inv.Items)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), inv.EntryDate)
}

func TestExtractor_Errors(t *testing.T) {
	t.Run("request failure", func(t *testing.T) {
		chatter := &fakeChatter{err: errors.New("boom")}
		_, err := llm.NewExtractor(chatter).ExtractFromText(context.Background(), "texto")

		var extractionErr *model.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, "llm_text", extractionErr.Method)
	})

	t.Run("invalid json", func(t *testing.T) {
		chatter := &fakeChatter{response: "não consegui ler a nota"}
		_, err := llm.NewExtractor(chatter).ExtractFromImage(context.Background(), []byte{1}, "image/jpeg")

		var extractionErr *model.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, "llm_vision", extractionErr.Method)
	})

	t.Run("empty input", func(t *testing.T) {
		extractor := llm.NewExtractor(&fakeChatter{})
		_, err := extractor.ExtractFromText(context.Background(), "  ")
		assert.Error(t, err)
		_, err = extractor.ExtractFromImage(context.Background(), nil, "image/png")
		assert.Error(t, err)
	})
}

func TestExtractJSON_CodeBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "Here is the invoice data:\n```json\n{\"invoice_number\": \"001\"}\n```",
			expected: `{"invoice_number": "001"}`,
		},
		{
			name:     "generic code block",
			input:    "```\n{\"invoice_number\": \"002\"}\n```",
			expected: `{"invoice_number": "002"}`,
		},
		{
			name:     "raw json object",
			input:    `{"invoice_number": "003"}`,
			expected: `{"invoice_number": "003"}`,
		},
		{
			name:     "raw json array",
			input:    `[{"id": 1}, {"id": 2}]`,
			expected: `[{"id": 1}, {"id": 2}]`,
		},
		{
			name:     "json with explanation",
			input:    "Encontrei os dados:\n```json\n{\"freight\": 10.5}\n```\nValores em reais.",
			expected: `{"freight": 10.5}`,
		},
		{
			name:     "raw json inside prose",
			input:    "Segue o resultado: {\"invoice_number\": \"004\"} conforme o DANFE.",
			expected: `{"invoice_number": "004"}`,
		},
		{
			name:     "no json",
			input:    "  não consegui ler a imagem  ",
			expected: "não consegui ler a imagem",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := llm.ExtractJSON(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`1234.56`, "1234.56"},
		{`"1234.56"`, "1234.56"},
		{`"1.234,56"`, "1234.56"},
		{`"R$ 1.234,56"`, "1234.56"},
		{`null`, "0"},
		{`"abc"`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var a llm.Amount
			require.NoError(t, json.Unmarshal([]byte(tt.input), &a))
			assert.True(t, a.Equal(decimal.RequireFromString(tt.expected)), "got %s", a.Decimal)
		})
	}
}

func TestInferProvider(t *testing.T) {
	assert.Equal(t, "anthropic", llm.InferProvider(llm.ModelClaude35Sonnet))
	assert.Equal(t, "openai", llm.InferProvider("gpt-4o-mini"))
	assert.Equal(t, "google", llm.InferProvider("gemini-2.0-flash"))
	assert.Equal(t, "-", llm.InferProvider("custom-model"))
}

func TestModelConstants(t *testing.T) {
	models := []string{
		llm.ModelClaude35Sonnet,
		llm.ModelClaude3Haiku,
		llm.ModelGPT4oMini,
		llm.ModelGPT4o,
		llm.ModelGeminiFlash,
	}

	for _, m := range models {
		assert.NotEmpty(t, m)
		assert.Contains(t, m, "/") // All models have provider/model format
	}
}

func TestPromptTemplates(t *testing.T) {
	assert.Contains(t, llm.SystemPromptInvoiceExtractor, "NF-e")
	assert.Contains(t, llm.SystemPromptInvoiceExtractor, "DANFE")
	assert.Contains(t, llm.UserPromptTextExtraction, "JSON")
	assert.Contains(t, llm.UserPromptImageExtraction, "JSON")
	assert.Contains(t, llm.UserPromptOCRCorrection, "%s")
}

func TestDefaultBaseURL(t *testing.T) {
	assert.Equal(t, "https://openrouter.ai/api/v1", llm.DefaultBaseURL)
}

// Benchmark tests

func BenchmarkExtractJSON(b *testing.B) {
	input := "Here is the data:\n```json\n{\"invoice_number\": \"001\", \"freight\": 10}\n```"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		llm.ExtractJSON(input)
	}
}
