package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"
)

// apiExportProducts streams the catalog as an xlsx price list.
func (s *Server) apiExportProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method", 405)
		return
	}
	list, err := s.products.List(r.Context(), 1000, 0)
	if err != nil {
		writeErr(w, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{"Title", "Slug", "Price", "Stock", "Gender", "Sizes", "Tags", "Images"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for row, p := range list {
		values := []any{
			p.Title,
			p.Slug,
			p.Price,
			p.Stock,
			string(p.Gender),
			strings.Join(p.Sizes, ","),
			strings.Join(p.Tags, ","),
			len(p.Images),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "products.xlsx"))
	if err := f.Write(w); err != nil {
		http.Error(w, "export", 500)
	}
}
