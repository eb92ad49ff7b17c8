package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/teslostore/internal/domain"
)

// --- Fake repository ---

type fakeRepo struct {
	products map[uuid.UUID]*domain.Product
	order    []uuid.UUID
	beginErr error
	saveErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{products: map[uuid.UUID]*domain.Product{}}
}

func clone(p *domain.Product) *domain.Product {
	cp := *p
	cp.Images = append([]domain.ProductImage(nil), p.Images...)
	cp.Sizes = append([]string(nil), p.Sizes...)
	cp.Tags = append([]string(nil), p.Tags...)
	return &cp
}

func (r *fakeRepo) conflict(p *domain.Product) error {
	for _, other := range r.products {
		if other.ID == p.ID {
			continue
		}
		if other.Title == p.Title {
			return &domain.DuplicateError{Detail: fmt.Sprintf("Key (title)=(%s) already exists.", p.Title)}
		}
		if other.Slug == p.Slug {
			return &domain.DuplicateError{Detail: fmt.Sprintf("Key (slug)=(%s) already exists.", p.Slug)}
		}
	}
	return nil
}

func (r *fakeRepo) Create(_ context.Context, p *domain.Product) error {
	if err := r.conflict(p); err != nil {
		return err
	}
	r.products[p.ID] = clone(p)
	r.order = append(r.order, p.ID)
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(p), nil
}

func (r *fakeRepo) FindByTerm(_ context.Context, term string) (*domain.Product, error) {
	for _, p := range r.products {
		if p.Title == term || p.Slug == term {
			return clone(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) List(_ context.Context, limit, offset int) ([]domain.Product, error) {
	var out []domain.Product
	for i := offset; i < len(r.order) && len(out) < limit; i++ {
		if p, ok := r.products[r.order[i]]; ok {
			out = append(out, *clone(p))
		}
	}
	return out, nil
}

func (r *fakeRepo) PreloadMerge(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(patch)
	return p, nil
}

func (r *fakeRepo) Save(_ context.Context, p *domain.Product) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if err := r.conflict(p); err != nil {
		return err
	}
	stored, ok := r.products[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := clone(p)
	cp.Images = stored.Images // metadata save never touches images
	r.products[p.ID] = cp
	return nil
}

func (r *fakeRepo) Remove(_ context.Context, p *domain.Product) error {
	delete(r.products, p.ID)
	for i, id := range r.order {
		if id == p.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeRepo) DeleteAll(_ context.Context) error {
	r.products = map[uuid.UUID]*domain.Product{}
	r.order = nil
	return nil
}

func (r *fakeRepo) Begin(_ context.Context) (domain.ProductTx, error) {
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	return &fakeTx{repo: r}, nil
}

// fakeTx stages mutations and applies them only on Commit, mirroring
// the repository's transactional contract.
type fakeTx struct {
	repo   *fakeRepo
	staged []func()
	done   bool
}

func (t *fakeTx) DeleteImages(productID uuid.UUID) error {
	t.staged = append(t.staged, func() {
		if p, ok := t.repo.products[productID]; ok {
			p.Images = nil
		}
	})
	return nil
}

func (t *fakeTx) SaveProduct(p *domain.Product) error {
	cp := clone(p)
	t.staged = append(t.staged, func() {
		t.repo.products[cp.ID] = cp
	})
	return nil
}

func (t *fakeTx) Commit() error {
	if t.done {
		return errors.New("transaction finished")
	}
	t.done = true
	for _, apply := range t.staged {
		apply()
	}
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.staged = nil
	return nil
}

// --- Fake media store ---

type fakeMedia struct {
	blobs     map[string]bool
	uploaded  int
	deleted   []string
	uploadErr error
	deleteErr error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{blobs: map[string]bool{}}
}

func (m *fakeMedia) Upload(_ context.Context, files []domain.File, folder string) ([]domain.Blob, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	out := make([]domain.Blob, len(files))
	for i, f := range files {
		m.uploaded++
		id := fmt.Sprintf("%s/blob_%d", folder, m.uploaded)
		m.blobs[id] = true
		out[i] = domain.Blob{URL: "https://cdn.test/" + id + "/" + f.Name, ExternalID: id}
	}
	return out, nil
}

func (m *fakeMedia) Delete(_ context.Context, ids []string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	// deleting an absent blob is fine
	for _, id := range ids {
		delete(m.blobs, id)
		m.deleted = append(m.deleted, id)
	}
	return nil
}

// --- Helpers ---

func newUC(repo *fakeRepo, media *fakeMedia) *ProductUC {
	return &ProductUC{Products: repo, Media: media, Folder: "TEST_PRODUCTS", Log: zerolog.Nop()}
}

func mustCreate(t *testing.T, uc *ProductUC, title string) *domain.Product {
	t.Helper()
	p, err := uc.Create(context.Background(), uuid.New(), &domain.Product{
		Title: title, Price: 10, Stock: 1, Gender: domain.GenderUnisex,
	})
	require.NoError(t, err)
	return p
}

func withImages(t *testing.T, repo *fakeRepo, uc *ProductUC, title string, externalIDs ...string) *domain.Product {
	t.Helper()
	p := mustCreate(t, uc, title)
	stored := repo.products[p.ID]
	for _, id := range externalIDs {
		eid := id
		stored.Images = append(stored.Images, domain.ProductImage{
			ID: uuid.New(), ProductID: p.ID, URL: "https://cdn.test/" + eid, ExternalID: &eid,
		})
	}
	return p
}

// --- Tests ---

func TestCreate_DuplicateTitle(t *testing.T) {
	repo := newFakeRepo()
	uc := newUC(repo, newFakeMedia())

	first := mustCreate(t, uc, "Chill Crew Neck")

	_, err := uc.Create(context.Background(), uuid.New(), &domain.Product{
		Title: "Chill Crew Neck", Gender: domain.GenderMen,
	})
	var dup *domain.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Contains(t, dup.Detail, "title")

	got, err := uc.Find(context.Background(), first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestCreate_SlugDerivedFromTitle(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())

	p, err := uc.Create(context.Background(), uuid.New(), &domain.Product{
		Title: "Men's Chill Shirt", Gender: domain.GenderMen,
	})
	require.NoError(t, err)
	assert.Equal(t, "mens_chill_shirt", p.Slug)
}

func TestCreate_InvalidProduct(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())

	_, err := uc.Create(context.Background(), uuid.New(), &domain.Product{Title: "Neg", Price: -1})
	require.ErrorIs(t, err, domain.ErrInvalidProduct)

	_, err = uc.Create(context.Background(), uuid.New(), &domain.Product{Title: "Bad Gender", Gender: "alien"})
	require.ErrorIs(t, err, domain.ErrInvalidProduct)
}

func TestFind_LookupEquivalence(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())
	p := mustCreate(t, uc, "Quilted Jacket")

	for _, term := range []string{p.ID.String(), "Quilted Jacket", "quilted_jacket"} {
		got, err := uc.Find(context.Background(), term)
		require.NoError(t, err, "term %q", term)
		assert.Equal(t, p.ID, got.ID, "term %q", term)
	}
}

func TestFind_UUIDMissFallsBackToTerm(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())
	mustCreate(t, uc, "Solar Hat")

	// an identifier-shaped term that is not a stored id
	_, err := uc.Find(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_Pagination(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())
	for i := 0; i < 5; i++ {
		mustCreate(t, uc, fmt.Sprintf("Product %d", i))
	}

	page, err := uc.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = uc.List(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	// unspecified limit defaults to 10
	page, err = uc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, page, 5)
}

func TestUpdate_MergesAndRereads(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())
	p := mustCreate(t, uc, "Old Title")

	price := 99.5
	title := "New Title"
	got, err := uc.Update(context.Background(), p.ID, domain.ProductPatch{Title: &title, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title)
	assert.Equal(t, 99.5, got.Price)
	// untouched fields survive the merge
	assert.Equal(t, p.Slug, got.Slug)
	assert.Equal(t, p.Stock, got.Stock)
}

func TestUpdate_NotFound(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())

	_, err := uc.Update(context.Background(), uuid.New(), domain.ProductPatch{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_Duplicate(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())
	mustCreate(t, uc, "Taken")
	p := mustCreate(t, uc, "Free")

	title := "Taken"
	_, err := uc.Update(context.Background(), p.ID, domain.ProductPatch{Title: &title})
	var dup *domain.DuplicateError
	require.ErrorAs(t, err, &dup)
}

func TestUpdate_OpaquePersistenceFailure(t *testing.T) {
	repo := newFakeRepo()
	uc := newUC(repo, newFakeMedia())
	p := mustCreate(t, uc, "Fragile")

	repo.saveErr = errors.New("pq: relation exploded at block 42")
	title := "Renamed"
	_, err := uc.Update(context.Background(), p.ID, domain.ProductPatch{Title: &title})
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotContains(t, err.Error(), "block 42")
}

func TestDelete_CascadeAndRemoteCleanup(t *testing.T) {
	repo := newFakeRepo()
	media := newFakeMedia()
	uc := newUC(repo, media)
	p := withImages(t, repo, uc, "Pictured", "ext_a", "ext_b")

	require.NoError(t, uc.Delete(context.Background(), p.ID.String()))

	assert.ElementsMatch(t, []string{"ext_a", "ext_b"}, media.deleted)
	for _, term := range []string{p.ID.String(), p.Title, p.Slug} {
		_, err := uc.Find(context.Background(), term)
		require.ErrorIs(t, err, domain.ErrNotFound, "term %q", term)
	}
}

func TestDelete_RemoteFailureDoesNotBlock(t *testing.T) {
	repo := newFakeRepo()
	media := newFakeMedia()
	media.deleteErr = domain.ErrDelete
	uc := newUC(repo, media)
	p := withImages(t, repo, uc, "Stubborn", "ext_x")

	require.NoError(t, uc.Delete(context.Background(), p.ID.String()))

	_, err := uc.Find(context.Background(), p.ID.String())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncImages_EmptyInput(t *testing.T) {
	repo := newFakeRepo()
	uc := newUC(repo, newFakeMedia())
	p := withImages(t, repo, uc, "Untouched", "ext_keep")

	_, err := uc.SyncImages(context.Background(), p.ID.String(), nil)
	require.ErrorIs(t, err, domain.ErrNoFiles)

	got, err := uc.Find(context.Background(), p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"ext_keep"}, got.ExternalIDs())
}

func TestSyncImages_NotFound(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())

	_, err := uc.SyncImages(context.Background(), uuid.NewString(), []domain.File{{Name: "a.png"}})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncImages_ReplacesWholeSet(t *testing.T) {
	repo := newFakeRepo()
	media := newFakeMedia()
	uc := newUC(repo, media)
	p := withImages(t, repo, uc, "Swapped", "old_1", "old_2")

	files := []domain.File{{Name: "a.png"}, {Name: "b.png"}, {Name: "c.png"}}
	got, err := uc.SyncImages(context.Background(), p.ID.String(), files)
	require.NoError(t, err)
	require.Len(t, got.Images, 3)

	old := map[string]bool{"old_1": true, "old_2": true}
	for _, id := range got.ExternalIDs() {
		assert.False(t, old[id], "old blob %s survived the sync", id)
	}
	assert.ElementsMatch(t, []string{"old_1", "old_2"}, media.deleted)

	stored, err := uc.Find(context.Background(), p.ID.String())
	require.NoError(t, err)
	assert.Len(t, stored.Images, 3)
}

func TestSyncImages_UploadFailureRollsBackRows(t *testing.T) {
	repo := newFakeRepo()
	media := newFakeMedia()
	media.uploadErr = domain.ErrUpload
	uc := newUC(repo, media)
	p := withImages(t, repo, uc, "Halfway", "old_1", "old_2")

	_, err := uc.SyncImages(context.Background(), p.ID.String(), []domain.File{{Name: "a.png"}})
	require.ErrorIs(t, err, domain.ErrPersistence)

	// the rows are back even though the old remote blobs are gone
	got, findErr := uc.Find(context.Background(), p.ID.String())
	require.NoError(t, findErr)
	assert.ElementsMatch(t, []string{"old_1", "old_2"}, got.ExternalIDs())
	assert.ElementsMatch(t, []string{"old_1", "old_2"}, media.deleted)
}

func TestSyncImages_RemoteDeleteFailureAborts(t *testing.T) {
	repo := newFakeRepo()
	media := newFakeMedia()
	media.deleteErr = domain.ErrDelete
	uc := newUC(repo, media)
	p := withImages(t, repo, uc, "Guarded", "old_1")

	_, err := uc.SyncImages(context.Background(), p.ID.String(), []domain.File{{Name: "a.png"}})
	require.ErrorIs(t, err, domain.ErrPersistence)

	got, findErr := uc.Find(context.Background(), p.ID.String())
	require.NoError(t, findErr)
	assert.Equal(t, []string{"old_1"}, got.ExternalIDs())
	assert.Zero(t, media.uploaded, "nothing should upload after an aborted remote delete")
}

func TestSyncImages_OpaqueErrorOnBeginFailure(t *testing.T) {
	repo := newFakeRepo()
	uc := newUC(repo, newFakeMedia())
	p := mustCreate(t, uc, "Txless")

	repo.beginErr = errors.New("connection refused")
	_, err := uc.SyncImages(context.Background(), p.ID.String(), []domain.File{{Name: "a.png"}})
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestDeleteAll(t *testing.T) {
	uc := newUC(newFakeRepo(), newFakeMedia())
	mustCreate(t, uc, "One")
	mustCreate(t, uc, "Two")

	require.NoError(t, uc.DeleteAll(context.Background()))

	list, err := uc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
