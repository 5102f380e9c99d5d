package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-entry/internal/allocation"
	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/entry"
	"github.com/rezonia/nfe-entry/internal/export"
	"github.com/rezonia/nfe-entry/internal/metrics"
	"github.com/rezonia/nfe-entry/internal/model"
	"github.com/rezonia/nfe-entry/internal/processor"
	"github.com/rezonia/nfe-entry/internal/store"
)

const (
	imageUserMessage = "não foi possível processar a imagem"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return body, true
}

func (s *Server) handleParseNFe(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), parseTimeout)
	defer cancel()

	result := s.pipeline.ProcessXMLBytes(ctx, body)
	if result.Error != nil {
		// The cause is logged by the pipeline; users only see one message.
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: processor.UserMessage})
		return
	}
	s.respondImport(c, result)
}

func (s *Server) handleProcessImage(c *gin.Context) {
	if !s.pipeline.HasLLM() {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   imageUserMessage,
			Details: "LLM extractor not configured",
		})
		return
	}

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	contentType := c.GetHeader("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = processor.DetectMimeType(body)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), llmTimeout)
	defer cancel()

	result := s.pipeline.ProcessImage(ctx, body, contentType)
	if result.Error != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: imageUserMessage})
		return
	}
	s.respondImport(c, result)
}

// respondImport seeds a draft from a successful import and resolves the
// supplier by document
func (s *Server) respondImport(c *gin.Context, result *processor.Result) {
	draft := entry.NewDraft(s.now())
	if err := draft.ApplyImport(result.Invoice); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: processor.UserMessage})
		return
	}

	found := false
	if draft.SupplierDoc != "" {
		supplier, err := s.store.FindSupplierByDocument(c.Request.Context(), draft.SupplierDoc)
		switch {
		case err == nil:
			draft.SupplierID = supplier.ID
			found = true
		case !errors.Is(err, store.ErrNotFound):
			s.logger.Warn("supplier lookup failed", zap.String("document", draft.SupplierDoc), zap.Error(err))
		}
	}

	alloc := draft.Allocation()
	s.metrics.ObserveAllocation()

	c.JSON(http.StatusOK, ImportResponse{
		Invoice:       result.Invoice,
		Method:        string(result.Method),
		Confidence:    result.Confidence,
		Warnings:      result.Warnings,
		Draft:         draft,
		Allocation:    alloc,
		SupplierFound: found,
	})
}

func (s *Server) handleAllocation(c *gin.Context) {
	var req AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	costs := model.ExtraCosts{
		Freight:    req.Freight,
		TaxPercent: s.config.Allocation.DefaultTaxPercent,
		OtherCosts: req.OtherCosts,
	}
	if req.TaxPercent != nil {
		costs.TaxPercent = *req.TaxPercent
	}

	if err := validateCosts(req.Items, costs); err != nil {
		s.validationError(c, err)
		return
	}

	result := allocation.Compute(req.Items, costs)
	s.metrics.ObserveAllocation()
	c.JSON(http.StatusOK, result)
}

// validateCosts rejects negative inputs. Degenerate values (zero quantity,
// zero subtotal) are valid and yield zero allocations.
func validateCosts(items []model.LineItem, costs model.ExtraCosts) error {
	if costs.Freight.IsNegative() {
		return model.NewValidationError("freight", costs.Freight.String(), model.RuleNonNeg, "freight must not be negative")
	}
	if costs.TaxPercent.IsNegative() || costs.TaxPercent.GreaterThan(money.Hundred) {
		return model.NewValidationError("tax_percent", costs.TaxPercent.String(), model.RulePercent, "tax percent must be between 0 and 100")
	}
	for _, oc := range costs.OtherCosts {
		if oc.Value.IsNegative() {
			return model.NewValidationError("other_costs", oc.Value.String(), model.RuleNonNeg, "other cost must not be negative")
		}
	}
	for _, item := range items {
		if item.Quantity.IsNegative() || item.UnitCost.IsNegative() {
			return model.NewValidationError("items", item.Name, model.RuleNonNeg, "quantity and unit cost must not be negative")
		}
	}
	return nil
}

func (s *Server) handleCreateEntry(c *gin.Context) {
	draft := entry.NewDraft(s.now())
	if err := c.ShouldBindJSON(draft); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	ctx := c.Request.Context()

	if draft.SupplierID == "" && draft.SupplierDoc != "" {
		supplier, err := s.store.SaveSupplier(ctx, model.Supplier{Name: draft.SupplierName, Document: draft.SupplierDoc})
		if err != nil {
			s.logger.Error("save supplier", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save supplier"})
			return
		}
		draft.SupplierID = supplier.ID
	}

	sub, err := draft.Submission()
	if err != nil {
		s.metrics.ObserveSave(metrics.ResultInvalid)
		s.validationError(c, err)
		return
	}

	saved, err := s.store.SaveEntry(ctx, sub)
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		s.metrics.ObserveSave(metrics.ResultInvalid)
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Field: "invoice_key"})
		return
	case err != nil:
		s.metrics.ObserveSave(metrics.ResultFailed)
		s.logger.Error("save entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save entry"})
		return
	}

	s.metrics.ObserveSave(metrics.ResultOK)
	s.logger.Info("entry saved",
		zap.String("id", saved.ID),
		zap.String("invoice_number", saved.InvoiceNumber),
		zap.Int("items", len(saved.Items)))

	c.JSON(http.StatusCreated, entryResponse(saved))
}

func (s *Server) handleGetEntry(c *gin.Context) {
	e, ok := s.lookupEntry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, entryResponse(e))
}

func (s *Server) handleListEntries(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Field: "limit"})
			return
		}
		limit = n
	}

	entries, err := s.store.ListEntries(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("list entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, ListResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) handleExportEntry(c *gin.Context) {
	e, ok := s.lookupEntry(c)
	if !ok {
		return
	}

	data, err := export.RateioXLSX(export.Header{
		InvoiceNumber: e.InvoiceNumber,
		InvoiceKey:    e.InvoiceKey,
		Supplier:      e.SupplierID,
		EntryDate:     e.EntryDate,
	}, allocation.FromSubmission(e.Submission))
	if err != nil {
		s.logger.Error("export entry", zap.String("id", e.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to export entry"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="rateio-%s.xlsx"`, e.ID))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (s *Server) lookupEntry(c *gin.Context) (model.Entry, bool) {
	e, err := s.store.GetEntry(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "entry not found"})
		return model.Entry{}, false
	case err != nil:
		s.logger.Error("get entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load entry"})
		return model.Entry{}, false
	}
	return e, true
}

func entryResponse(e model.Entry) EntryResponse {
	alloc := allocation.FromSubmission(e.Submission)
	e.Allocated = alloc.Items
	return EntryResponse{Entry: e, Allocation: alloc}
}

func (s *Server) validationError(c *gin.Context, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: vErr.Message, Field: vErr.Field, Details: vErr.Error()})
	case errors.Is(err, entry.ErrDuplicateProduct):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: "product_id"})
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
}

func (s *Server) handleVerify(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	if !s.verifier.CanVerify(body) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported file format for signature verification"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), verifyTimeout)
	defer cancel()

	result, err := s.verifier.Verify(ctx, body)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:    "signature verification failed",
			Details:  err.Error(),
			Warnings: result.Warnings,
		})
		return
	}

	response := VerifyResponse{
		Valid:          result.Valid,
		SignatureFound: result.SignatureFound,
		SignatureValid: result.SignatureValid,
		CertChainValid: result.CertChainValid,
		NotRevoked:     result.NotRevoked,
		Format:         result.Format,
		AccessKey:      result.AccessKey,
		IssuerDocument: result.IssuerDocument,
		SignedAt:       result.SignedAt,
		Warnings:       result.Warnings,
		Errors:         result.Errors,
	}
	if result.Signer != nil {
		response.Signer = &SignerInfoOutput{
			Name:         result.Signer.Name,
			Document:     result.Signer.Document,
			Organization: result.Signer.Organization,
			SerialNumber: result.Signer.SerialNumber,
			Issuer:       result.Signer.Issuer,
			ValidFrom:    &result.Signer.ValidFrom,
			ValidTo:      &result.Signer.ValidTo,
		}
	}

	if result.Valid {
		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusUnprocessableEntity, response)
	}
}

func (s *Server) handleInfo(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, InfoResponse{
		Format:   processor.DetectFormat(body).String(),
		MimeType: processor.DetectMimeType(body),
		Size:     len(body),
	})
}
