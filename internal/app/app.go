package app

import (
	"net/http"
	"os"

	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/phenrril/teslostore/internal/adapters/httpserver"
	"github.com/phenrril/teslostore/internal/adapters/media/cloudinary"
	"github.com/phenrril/teslostore/internal/adapters/repo/postgres"
	"github.com/phenrril/teslostore/internal/domain"
	"github.com/phenrril/teslostore/internal/usecase"
)

type App struct {
	DB        *gorm.DB
	ProductUC *usecase.ProductUC
	SeedUC    *usecase.SeedUC
}

func NewApp(db *gorm.DB) (*App, error) {
	prodRepo := postgres.NewProductRepo(db)

	media := cloudinary.New(cloudinary.Config{
		CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		BaseURL:   os.Getenv("CLOUDINARY_BASE_URL"),
	})

	folder := os.Getenv("CLOUDINARY_FOLDER")
	if folder == "" {
		folder = "TESLO_SHOP_PRODUCTS"
	}

	app := &App{DB: db}
	app.ProductUC = &usecase.ProductUC{Products: prodRepo, Media: media, Folder: folder, Log: zlog.Logger}
	app.SeedUC = &usecase.SeedUC{Products: app.ProductUC, Repo: prodRepo, Media: media, Log: zlog.Logger}
	return app, nil
}

func (a *App) HTTPHandler() http.Handler {
	return httpserver.New(a.ProductUC, a.SeedUC)
}

func (a *App) Migrate() error {
	if err := a.DB.AutoMigrate(&domain.Product{}, &domain.ProductImage{}); err != nil {
		return err
	}

	// AutoMigrate leaves pre-existing FKs alone; force the cascade so a
	// product delete always takes its image rows with it
	_ = a.DB.Exec("ALTER TABLE product_images DROP CONSTRAINT IF EXISTS fk_products_images").Error
	_ = a.DB.Exec("ALTER TABLE product_images ADD CONSTRAINT fk_products_images FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE").Error

	_ = a.DB.Exec("CREATE INDEX IF NOT EXISTS idx_product_images_product_id ON product_images(product_id)").Error
	_ = a.DB.Exec("CREATE INDEX IF NOT EXISTS idx_products_owner_id ON products(owner_id)").Error
	return nil
}
