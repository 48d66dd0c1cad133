package services

import (
	"context"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// CatalogService manages banks, categories and subcategories. Writes
// invalidate the cached dashboard summaries since those embed bank
// totals and category names.
type CatalogService struct {
	store       *storage.Store
	invalidator Invalidator
}

func NewCatalogService(store *storage.Store, invalidator Invalidator) *CatalogService {
	return &CatalogService{store: store, invalidator: invalidator}
}

func (s *CatalogService) CreateBank(ctx context.Context, userID int64, b core.Bank) (core.Bank, error) {
	b.UserID = userID
	b.Name = strings.TrimSpace(b.Name)
	if err := b.Validate(); err != nil {
		return core.Bank{}, err
	}
	created, err := s.store.CreateBank(ctx, b)
	if err != nil {
		return core.Bank{}, err
	}
	invalidate(s.invalidator, userID)
	return created, nil
}

func (s *CatalogService) GetBank(ctx context.Context, userID, id int64) (core.Bank, error) {
	return s.store.GetBank(ctx, userID, id)
}

func (s *CatalogService) ListBanks(ctx context.Context, userID int64) ([]core.Bank, error) {
	return s.store.ListBanks(ctx, userID)
}

func (s *CatalogService) UpdateBank(ctx context.Context, userID, id int64, b core.Bank) (core.Bank, error) {
	b.ID, b.UserID = id, userID
	b.Name = strings.TrimSpace(b.Name)
	if err := b.Validate(); err != nil {
		return core.Bank{}, err
	}
	updated, err := s.store.UpdateBank(ctx, b)
	if err != nil {
		return core.Bank{}, err
	}
	invalidate(s.invalidator, userID)
	return updated, nil
}

func (s *CatalogService) DeleteBank(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteBank(ctx, userID, id); err != nil {
		return err
	}
	invalidate(s.invalidator, userID)
	return nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, userID int64, c core.Category) (core.Category, error) {
	c.UserID = userID
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.store.CreateCategory(ctx, c)
}

// ListCategories lists the user's categories, optionally of one kind.
func (s *CatalogService) ListCategories(ctx context.Context, userID int64, kind core.EntryKind) ([]core.Category, error) {
	if kind != "" && !kind.Valid() {
		return nil, core.Invalid("type", core.ErrInvalidKind)
	}
	return s.store.ListCategories(ctx, userID, kind)
}

// RenameCategory changes the name only; the type of a category is fixed.
func (s *CatalogService) RenameCategory(ctx context.Context, userID, id int64, name string) (core.Category, error) {
	current, err := s.store.GetCategory(ctx, userID, id)
	if err != nil {
		return core.Category{}, err
	}
	current.Name = strings.TrimSpace(name)
	if err := current.Validate(); err != nil {
		return core.Category{}, err
	}
	updated, err := s.store.UpdateCategory(ctx, current)
	if err != nil {
		return core.Category{}, err
	}
	invalidate(s.invalidator, userID)
	return updated, nil
}

// DeleteCategory fails with core.ErrConflict while transactions use it.
func (s *CatalogService) DeleteCategory(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteCategory(ctx, userID, id); err != nil {
		return err
	}
	invalidate(s.invalidator, userID)
	return nil
}

func (s *CatalogService) CreateSubCategory(ctx context.Context, userID, categoryID int64, name string) (core.SubCategory, error) {
	if _, err := s.store.GetCategory(ctx, userID, categoryID); err != nil {
		return core.SubCategory{}, err
	}
	sc := core.SubCategory{CategoryID: categoryID, Name: strings.TrimSpace(name)}
	if err := sc.Validate(); err != nil {
		return core.SubCategory{}, err
	}
	return s.store.CreateSubCategory(ctx, sc)
}

func (s *CatalogService) ListSubCategories(ctx context.Context, userID, categoryID int64) ([]core.SubCategory, error) {
	if _, err := s.store.GetCategory(ctx, userID, categoryID); err != nil {
		return nil, err
	}
	return s.store.ListSubCategories(ctx, categoryID)
}

func (s *CatalogService) DeleteSubCategory(ctx context.Context, userID, id int64) error {
	return s.store.DeleteSubCategory(ctx, userID, id)
}
