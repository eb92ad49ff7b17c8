package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phenrril/teslostore/internal/domain"
)

type ProductRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) *ProductRepo { return &ProductRepo{db: db} }

// translateErr maps storage-engine conflict signals to the domain
// taxonomy so the usecases never sniff driver error codes.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		detail := pgErr.Detail
		if detail == "" {
			detail = pgErr.ConstraintName
		}
		return &domain.DuplicateError{Detail: detail}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &domain.DuplicateError{Detail: err.Error()}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	return translateErr(r.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error)
}

func (r *ProductRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (r *ProductRepo) FindByTerm(ctx context.Context, term string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Where("title = ? OR slug = ?", term, term).
		First(&p).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (r *ProductRepo) List(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	var list []domain.Product
	err := r.db.WithContext(ctx).
		Order("created_at asc").Order("id asc").
		Offset(offset).Limit(limit).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// PreloadMerge returns the stored product overlaid with the patch,
// without writing anything. Callers validate the merge and then Save.
func (r *ProductRepo) PreloadMerge(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(patch)
	return p, nil
}

func (r *ProductRepo) Save(ctx context.Context, p *domain.Product) error {
	return translateErr(r.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error)
}

func (r *ProductRepo) Remove(ctx context.Context, p *domain.Product) error {
	// image rows go with the FK cascade
	return r.db.WithContext(ctx).Delete(&domain.Product{}, "id = ?", p.ID).Error
}

func (r *ProductRepo) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&domain.Product{}).Error
}

func (r *ProductRepo) Begin(ctx context.Context) (domain.ProductTx, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &productTx{tx: tx}, nil
}

type productTx struct {
	tx   *gorm.DB
	done bool
}

func (t *productTx) DeleteImages(productID uuid.UUID) error {
	return t.tx.Where("product_id = ?", productID).Delete(&domain.ProductImage{}).Error
}

func (t *productTx) SaveProduct(p *domain.Product) error {
	for i := range p.Images {
		if p.Images[i].ID == uuid.Nil {
			p.Images[i].ID = uuid.New()
		}
		p.Images[i].ProductID = p.ID
		if p.Images[i].CreatedAt.IsZero() {
			p.Images[i].CreatedAt = time.Now()
		}
	}
	if err := t.tx.Omit(clause.Associations).Save(p).Error; err != nil {
		return translateErr(err)
	}
	if len(p.Images) == 0 {
		return nil
	}
	return translateErr(t.tx.Create(&p.Images).Error)
}

func (t *productTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Commit().Error
}

func (t *productTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback().Error
}
