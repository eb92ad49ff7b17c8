package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phenrril/teslostore/internal/domain"
)

// SeedUC resets the catalog to a known demo state: remote blobs first,
// then the tables, then the demo products.
type SeedUC struct {
	Products *ProductUC
	Repo     domain.ProductRepo
	Media    domain.MediaStore
	Log      zerolog.Logger
}

var seedOwner = uuid.MustParse("b9f3c6fa-4a51-4c21-9f3e-0d6e6f6a1a10")

var seedProducts = []domain.Product{
	{Title: "Men's Chill Crew Neck Sweatshirt", Price: 75, Stock: 7, Gender: domain.GenderMen,
		Sizes: []string{"XS", "S", "M", "L", "XL", "XXL"}, Tags: []string{"sweatshirt"},
		Description: "Introducing the Tesla Chill Collection. The Men's Chill Crew Neck Sweatshirt has a premium, heavyweight exterior and soft fleece interior."},
	{Title: "Men's Quilted Shirt Jacket", Price: 200, Stock: 5, Gender: domain.GenderMen,
		Sizes: []string{"XS", "S", "M", "XL", "XXL"}, Tags: []string{"jacket"},
		Description: "The Men's Quilted Shirt Jacket features a uniquely fit, quilted design for warmth and mobility in cold weather seasons."},
	{Title: "Women's Cropped Puffer Jacket", Price: 225, Stock: 85, Gender: domain.GenderWomen,
		Sizes: []string{"XS", "S", "M"}, Tags: []string{"jacket", "women"},
		Description: "The Women's Cropped Puffer Jacket features a uniquely cropped silhouette for the perfect, modern style."},
	{Title: "Kids Cyberquad Bomber Jacket", Price: 65, Stock: 10, Gender: domain.GenderKid,
		Sizes: []string{"XS", "S", "M"}, Tags: []string{"shirt"},
		Description: "Wear your Kids Cyberquad Bomber Jacket during your adventures on the Cyberquad for Kids."},
	{Title: "3D Large Wordmark Tee", Price: 35, Stock: 50, Gender: domain.GenderUnisex,
		Sizes: []string{"XS", "S", "M", "L", "XL", "XXL"}, Tags: []string{"shirt"},
		Description: "Designed for comfort, the 3D Large Wordmark Tee is made from 100% Peruvian cotton."},
}

func (uc *SeedUC) Run(ctx context.Context) error {
	if err := uc.removeRemoteImages(ctx); err != nil {
		return err
	}
	if err := uc.Products.DeleteAll(ctx); err != nil {
		return err
	}
	for _, p := range seedProducts {
		prod := p
		if _, err := uc.Products.Create(ctx, seedOwner, &prod); err != nil {
			return err
		}
	}
	uc.Log.Info().Int("products", len(seedProducts)).Msg("seed executed")
	return nil
}

// removeRemoteImages collects every managed blob still referenced by an
// image row and deletes it from the media store before the rows go.
func (uc *SeedUC) removeRemoteImages(ctx context.Context) error {
	list, err := uc.Repo.List(ctx, 1000, 0)
	if err != nil {
		return err
	}
	var ids []string
	for i := range list {
		ids = append(ids, list[i].ExternalIDs()...)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := uc.Media.Delete(ctx, ids); err != nil {
		uc.Log.Warn().Err(err).Int("blobs", len(ids)).Msg("seed remote cleanup failed, orphaning blobs")
	}
	return nil
}
