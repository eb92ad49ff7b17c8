package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMen    Gender = "men"
	GenderWomen  Gender = "women"
	GenderKid    Gender = "kid"
	GenderUnisex Gender = "unisex"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMen, GenderWomen, GenderKid, GenderUnisex:
		return true
	}
	return false
}

var validSizes = map[string]struct{}{
	"XS": {}, "S": {}, "M": {}, "L": {}, "XL": {}, "XXL": {}, "XXXL": {},
}

func ValidSize(s string) bool {
	_, ok := validSizes[s]
	return ok
}

type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:180;uniqueIndex;not null" json:"title"`
	Slug        string    `gorm:"size:180;uniqueIndex;not null" json:"slug"`
	Price       float64   `gorm:"type:decimal(12,2);default:0" json:"price"`
	Description string    `gorm:"type:text" json:"description"`
	Stock       int       `gorm:"type:int;default:0" json:"stock"`
	Sizes       []string  `gorm:"type:jsonb;serializer:json" json:"sizes"`
	Gender      Gender    `gorm:"type:varchar(10)" json:"gender"`
	Tags        []string  `gorm:"type:jsonb;serializer:json" json:"tags"`
	OwnerID     uuid.UUID `gorm:"type:uuid;index" json:"owner_id"`

	Images []ProductImage `gorm:"constraint:OnDelete:CASCADE" json:"images"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProductImage struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID  uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	ExternalID *string   `gorm:"type:text" json:"external_id"`
	CreatedAt  time.Time `json:"-"`
}

func (ProductImage) TableName() string { return "product_images" }

// ExternalIDs returns the remote-store handles of every image backed by
// the managed media store. Legacy rows without a handle are skipped.
func (p *Product) ExternalIDs() []string {
	ids := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if img.ExternalID != nil && *img.ExternalID != "" {
			ids = append(ids, *img.ExternalID)
		}
	}
	return ids
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrInvalidProduct
	}
	if p.Price < 0 || p.Stock < 0 {
		return ErrInvalidProduct
	}
	if p.Gender != "" && !p.Gender.Valid() {
		return ErrInvalidProduct
	}
	for _, s := range p.Sizes {
		if !ValidSize(s) {
			return ErrInvalidProduct
		}
	}
	return nil
}

// NormalizeSlug derives the slug from the title when none was supplied
// and canonicalizes it either way: lowercase, spaces to underscores,
// apostrophes removed.
func (p *Product) NormalizeSlug() {
	src := p.Slug
	if strings.TrimSpace(src) == "" {
		src = p.Title
	}
	src = strings.ToLower(strings.TrimSpace(src))
	src = strings.ReplaceAll(src, " ", "_")
	src = strings.ReplaceAll(src, "'", "")
	p.Slug = src
}

type ProductPatch struct {
	Title       *string  `json:"title"`
	Slug        *string  `json:"slug"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Stock       *int     `json:"stock"`
	Sizes       []string `json:"sizes"`
	Gender      *Gender  `json:"gender"`
	Tags        []string `json:"tags"`
}

// Apply overlays the patch on the product. Nil fields keep the current
// value.
func (p *Product) Apply(patch ProductPatch) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Slug != nil {
		p.Slug = *patch.Slug
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.Sizes != nil {
		p.Sizes = patch.Sizes
	}
	if patch.Gender != nil {
		p.Gender = *patch.Gender
	}
	if patch.Tags != nil {
		p.Tags = patch.Tags
	}
}

// File is one binary blob handed to the media store.
type File struct {
	Name    string
	Content []byte
}

// Blob is the media store's receipt for an uploaded file.
type Blob struct {
	URL        string
	ExternalID string
}

type MediaStore interface {
	// Upload pushes every file into the named folder, one result per
	// input in input order. Either all files succeed or the call fails.
	Upload(ctx context.Context, files []File, folder string) ([]Blob, error)
	// Delete removes blobs by external id. Ids that are already absent
	// are not an error.
	Delete(ctx context.Context, externalIDs []string) error
}

type ProductRepo interface {
	Create(ctx context.Context, p *Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindByTerm(ctx context.Context, term string) (*Product, error)
	List(ctx context.Context, limit, offset int) ([]Product, error)
	PreloadMerge(ctx context.Context, id uuid.UUID, patch ProductPatch) (*Product, error)
	Save(ctx context.Context, p *Product) error
	Remove(ctx context.Context, p *Product) error
	DeleteAll(ctx context.Context) error
	Begin(ctx context.Context) (ProductTx, error)
}

// ProductTx scopes multi-row image mutations. Mutations take effect
// only on Commit; Rollback after Commit is a no-op, so a deferred
// Rollback never leaks the handle.
type ProductTx interface {
	DeleteImages(productID uuid.UUID) error
	SaveProduct(p *Product) error
	Commit() error
	Rollback() error
}
