package llm

// NF-e / DANFE extraction prompts

const SystemPromptInvoiceExtractor = `You are an expert data extractor for Brazilian electronic invoices (NF-e, Nota Fiscal Eletrônica) and their printed form (DANFE).

Your task is to extract structured purchase data from DANFE text or images. Documents are in Brazilian Portuguese.

Common DANFE terms:
- Número / Nº = Invoice number (nNF)
- Série = Series
- Chave de acesso = 44-digit access key
- Data de emissão = Issue date
- Emitente = Supplier (issuer)
- Destinatário = Recipient (buyer), ignore for supplier fields
- CNPJ / CPF = Supplier document
- Inscrição estadual (IE) = State registration
- Código do produto = Product code
- Descrição do produto = Product name
- NCM/SH = NCM code
- CFOP = Fiscal operation code
- Unidade (UN) = Unit
- Quantidade = Quantity
- Valor unitário = Unit price
- Valor total = Line total
- Valor do frete = Freight
- Base de cálculo do ICMS, Valor do ICMS, Valor do ICMS ST, Valor do IPI, PIS, COFINS = Taxes
- Outras despesas acessórias = Other costs
- Valor total dos produtos = Products total
- Valor total da nota = Invoice total
- Fatura / Duplicatas = Installments

Extract ALL information you can find. If a field is not present, omit it from the output.
Always output valid JSON that matches the specified schema.
Numbers must use a dot as decimal separator and no thousands separator ("1.234,56" becomes 1234.56).
Dates should be in ISO 8601 format (YYYY-MM-DD).
Documents (CNPJ/CPF) and the access key contain digits only.`

const invoiceSchema = `{
  "invoice_number": "string",
  "invoice_key": "44 digits",
  "series": "string",
  "date": "YYYY-MM-DD",
  "supplier": {
    "name": "string",
    "trade_name": "string",
    "document": "digits only",
    "state_registration": "string"
  },
  "items": [
    {
      "number": 1,
      "code": "string",
      "name": "string",
      "ncm": "string",
      "cfop": "string",
      "unit": "string",
      "quantity": 1,
      "unit_cost": 10.50
    }
  ],
  "freight": 0,
  "taxes": {
    "icms": 0,
    "icms_st": 0,
    "ipi": 0,
    "pis": 0,
    "cofins": 0,
    "other": 0
  },
  "products_total": 0,
  "discount": 0,
  "invoice_total": 0,
  "installments": [
    {"number": "001", "due_date": "YYYY-MM-DD", "amount": 0}
  ]
}`

const UserPromptTextExtraction = `Extract NF-e data from the following DANFE text:

---
%s
---

Output JSON with this structure:
` + invoiceSchema

const UserPromptImageExtraction = `Extract NF-e data from this DANFE image.

Output JSON with this structure:
` + invoiceSchema + `

Extract all visible information from the image. For any text that appears blurry or unclear, make your best attempt to read it.`

const UserPromptOCRCorrection = `The following is OCR-extracted text from a Brazilian DANFE. It may contain errors.

OCR Text:
---
%s
---

Please:
1. Correct any obvious OCR errors (especially accents and digit/letter confusion in CNPJ and access key)
2. Extract the structured invoice data

Output JSON with this structure:
` + invoiceSchema
