// Package store persists submitted purchase entries and resolves suppliers.
package store

import (
	"context"
	"errors"

	"github.com/rezonia/nfe-entry/internal/model"
)

var (
	// ErrNotFound is returned when an entry or supplier does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when an entry with the same access key
	// was already saved
	ErrDuplicateKey = errors.New("entry with this access key already exists")
)

// DefaultListLimit caps ListEntries when the caller passes no limit
const DefaultListLimit = 50

// Store is the persistence collaborator of the entry workflow
type Store interface {
	// SaveEntry persists a validated submission and returns it with its
	// generated ID and creation time
	SaveEntry(ctx context.Context, sub model.Submission) (model.Entry, error)
	GetEntry(ctx context.Context, id string) (model.Entry, error)
	// ListEntries returns the most recent entries first
	ListEntries(ctx context.Context, limit int) ([]model.Entry, error)

	// SaveSupplier registers a supplier, replacing one with the same document
	SaveSupplier(ctx context.Context, s model.Supplier) (model.Supplier, error)
	// FindSupplierByDocument resolves a CNPJ/CPF (digits only) to a supplier
	FindSupplierByDocument(ctx context.Context, document string) (model.Supplier, error)

	Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
