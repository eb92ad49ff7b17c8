package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phenrril/teslostore/internal/domain"
)

const (
	defaultLimit  = 10
	defaultOffset = 0
)

type ProductUC struct {
	Products domain.ProductRepo
	Media    domain.MediaStore
	// Folder is the media-store folder every catalog image lands in.
	Folder string
	Log    zerolog.Logger
}

func (uc *ProductUC) Create(ctx context.Context, ownerID uuid.UUID, p *domain.Product) (*domain.Product, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.OwnerID = ownerID
	p.NormalizeSlug()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := uc.Products.Create(ctx, p); err != nil {
		var dup *domain.DuplicateError
		if errors.As(err, &dup) {
			return nil, dup
		}
		uc.Log.Error().Err(err).Str("title", p.Title).Msg("create product")
		return nil, domain.ErrPersistence
	}
	return p, nil
}

func (uc *ProductUC) List(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = defaultOffset
	}
	return uc.Products.List(ctx, limit, offset)
}

// Find resolves a product by id, title or slug. Identifier-shaped terms
// try the id lookup first and fall back to the exact-match lookup on a
// miss. Terms are never treated as partial matches.
func (uc *ProductUC) Find(ctx context.Context, term string) (*domain.Product, error) {
	if id, err := uuid.Parse(term); err == nil {
		p, err := uc.Products.FindByID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return uc.Products.FindByTerm(ctx, term)
}

func (uc *ProductUC) Update(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error) {
	p, err := uc.Products.PreloadMerge(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.Slug != nil {
		p.NormalizeSlug()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := uc.Products.Save(ctx, p); err != nil {
		var dup *domain.DuplicateError
		if errors.As(err, &dup) {
			return nil, dup
		}
		uc.Log.Error().Err(err).Str("id", id.String()).Msg("update product")
		return nil, domain.ErrPersistence
	}
	return uc.Products.FindByID(ctx, id)
}

// Delete removes the product row and, best effort, its remote blobs. A
// media-store failure is logged and does not block the row delete: an
// orphaned blob is a lesser harm than an undeletable product.
func (uc *ProductUC) Delete(ctx context.Context, term string) error {
	p, err := uc.Find(ctx, term)
	if err != nil {
		return err
	}
	if ids := p.ExternalIDs(); len(ids) > 0 {
		if err := uc.Media.Delete(ctx, ids); err != nil {
			uc.Log.Warn().Err(err).Str("slug", p.Slug).Int("blobs", len(ids)).Msg("remote cleanup failed, orphaning blobs")
		}
	}
	if err := uc.Products.Remove(ctx, p); err != nil {
		uc.Log.Error().Err(err).Str("slug", p.Slug).Msg("remove product")
		return domain.ErrPersistence
	}
	return nil
}

// SyncImages replaces the product's entire image set with the uploaded
// files. The database either ends with exactly the new set or stays as
// it was; the remote store may be left with orphaned blobs on failure,
// which is accepted (the database is the source of truth).
func (uc *ProductUC) SyncImages(ctx context.Context, term string, files []domain.File) (*domain.Product, error) {
	if len(files) == 0 {
		return nil, domain.ErrNoFiles
	}
	p, err := uc.Find(ctx, term)
	if err != nil {
		return nil, err
	}

	tx, err := uc.Products.Begin(ctx)
	if err != nil {
		uc.Log.Error().Err(err).Str("slug", p.Slug).Msg("begin image sync")
		return nil, domain.ErrPersistence
	}
	fail := func(stage string, err error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			uc.Log.Error().Err(rbErr).Str("slug", p.Slug).Msg("rollback image sync")
		}
		uc.Log.Error().Err(err).Str("slug", p.Slug).Str("stage", stage).Msg("image sync failed")
		return domain.ErrPersistence
	}

	if ids := p.ExternalIDs(); len(ids) > 0 {
		if err := uc.Media.Delete(ctx, ids); err != nil {
			return nil, fail("delete old blobs", err)
		}
	}
	if err := tx.DeleteImages(p.ID); err != nil {
		return nil, fail("delete old rows", err)
	}

	blobs, err := uc.Media.Upload(ctx, files, uc.Folder)
	if err != nil {
		return nil, fail("upload", err)
	}

	imgs := make([]domain.ProductImage, len(blobs))
	for i, b := range blobs {
		externalID := b.ExternalID
		imgs[i] = domain.ProductImage{
			ID:         uuid.New(),
			ProductID:  p.ID,
			URL:        b.URL,
			ExternalID: &externalID,
		}
	}
	p.Images = imgs
	if err := tx.SaveProduct(p); err != nil {
		return nil, fail("save", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fail("commit", err)
	}
	return p, nil
}

// DeleteAll wipes every product row. Only the seeder calls this.
func (uc *ProductUC) DeleteAll(ctx context.Context) error {
	if err := uc.Products.DeleteAll(ctx); err != nil {
		uc.Log.Error().Err(err).Msg("delete all products")
		return domain.ErrPersistence
	}
	return nil
}
