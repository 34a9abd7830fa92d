package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"bargain-engine/internal/engine"
)

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.checkAdminKey(r); err != nil {
		writeErr(w, err)
		return
	}

	var p engine.Product
	if err := decodeJSON(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	if err := p.Validate(); err != nil {
		writeErr(w, err)
		return
	}
	p.CreatedAt = time.Now().UTC()

	if err := s.catalog.CreateProduct(r.Context(), &p); err != nil {
		writeErr(w, err)
		return
	}

	s.log.Info("product created",
		zap.String("product_id", p.ID),
		zap.Float64("anchor_price", p.AnchorPrice))
	writeJSONStatus(w, http.StatusCreated, p)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	product, err := s.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeErr(w, engine.ErrDegraded.Wrapf("get product: %v", err))
		return
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, product)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	skip, limit := parseSkipLimit(r, 50, 200)
	products, err := s.catalog.ListProducts(r.Context(), skip, limit)
	if err != nil {
		writeErr(w, engine.ErrDegraded.Wrapf("list products: %v", err))
		return
	}
	if products == nil {
		products = []engine.Product{}
	}
	writeJSON(w, map[string]any{
		"products": products,
		"count":    len(products),
	})
}
