package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/phenrril/teslostore/internal/domain"
	"github.com/phenrril/teslostore/internal/usecase"
)

const (
	maxUploadFiles = 10
	maxUploadBytes = 10 << 20
)

var allowedImageExt = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
}

type Server struct {
	mux      *http.ServeMux
	products *usecase.ProductUC
	seed     *usecase.SeedUC
}

func New(p *usecase.ProductUC, seed *usecase.SeedUC) http.Handler {
	s := &Server{mux: http.NewServeMux(), products: p, seed: seed}
	s.routes()
	return Chain(s.mux,
		RequestID,
		Recovery,
		Logging,
	)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/products", s.apiProducts)
	s.mux.HandleFunc("/api/products/", s.apiProductByTerm)
	s.mux.HandleFunc("/api/seed", s.apiSeed)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
}

func (s *Server) apiProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		list, err := s.products.List(r.Context(), limit, offset)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, list)
	case http.MethodPost:
		owner, ok := ownerID(w, r)
		if !ok {
			return
		}
		var p domain.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "json", 400)
			return
		}
		created, err := s.products.Create(r.Context(), owner, &p)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 201, created)
	default:
		http.Error(w, "method", 405)
	}
}

func (s *Server) apiProductByTerm(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/products/")
	if rest == "" {
		http.Error(w, "term", 400)
		return
	}
	if rest == "export" {
		s.apiExportProducts(w, r)
		return
	}
	if term, ok := strings.CutSuffix(rest, "/images"); ok {
		s.apiSyncImages(w, r, term)
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.products.Find(r.Context(), rest)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, p)
	case http.MethodPatch:
		id, err := uuid.Parse(rest)
		if err != nil {
			http.Error(w, "id", 400)
			return
		}
		var patch domain.ProductPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "json", 400)
			return
		}
		p, err := s.products.Update(r.Context(), id, patch)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, p)
	case http.MethodDelete:
		if err := s.products.Delete(r.Context(), rest); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "ok"})
	default:
		http.Error(w, "method", 405)
	}
}

func (s *Server) apiSyncImages(w http.ResponseWriter, r *http.Request, term string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "multipart", 400)
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) > maxUploadFiles {
		http.Error(w, "too many files", 400)
		return
	}
	files := make([]domain.File, 0, len(headers))
	for _, fh := range headers {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if _, ok := allowedImageExt[ext]; !ok {
			http.Error(w, "file type", 400)
			return
		}
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "file", 400)
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, "file", 400)
			return
		}
		files = append(files, domain.File{Name: fh.Filename, Content: content})
	}
	p, err := s.products.SyncImages(r.Context(), term, files)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, p)
}

func (s *Server) apiSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	if err := s.seed.Run(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "seed executed"})
}

func ownerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	// the auth gateway in front of this service injects the caller's
	// identity; the catalog only stores it
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		http.Error(w, "user", 401)
		return uuid.Nil, false
	}
	return id, true
}

func writeErr(w http.ResponseWriter, err error) {
	var dup *domain.DuplicateError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, 400, map[string]string{"error": dup.Detail})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, 404, map[string]string{"error": "product not found"})
	case errors.Is(err, domain.ErrNoFiles), errors.Is(err, domain.ErrInvalidProduct):
		writeJSON(w, 400, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, 500, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
