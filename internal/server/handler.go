// Package server exposes the cart resource over HTTP:
//
//	GET    /cart              list the caller's cart rows
//	POST   /cart              add a product (upserts on user+product)
//	PUT    /cart/{id}         set a row's quantity
//	DELETE /cart/{id}         remove one row
//	DELETE /cart/clear        remove every row
//
// All cart routes require a bearer token resolved to a user id by the
// configured TokenVerifier.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/raymonnguyen/baubiz-sub000/internal/server/repository"
)

// CartService is what the handlers need from the service layer.
type CartService interface {
	GetCart(ctx context.Context, userID string) ([]repository.Item, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (repository.Item, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, userID, itemID string) error
	ClearCart(ctx context.Context, userID string) error
}

const maxQuantity = 99

type Handler struct {
	svc CartService
}

func NewHandler(svc CartService) *Handler {
	return &Handler{svc: svc}
}

// NewRouter wires the cart routes with the standard middleware stack.
func NewRouter(svc CartService, verifier TokenVerifier) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(verifier))
		r.Get("/cart", h.GetCart)
		r.Post("/cart", h.AddItem)
		r.Delete("/cart/clear", h.ClearCart)
		r.Put("/cart/{cartItemID}", h.UpdateQuantity)
		r.Delete("/cart/{cartItemID}", h.RemoveItem)
	})

	return r
}

type addItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type productDTO struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

type profileDTO struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	IsBusiness bool   `json:"is_business"`
	IsVerified bool   `json:"is_verified"`
}

type cartItemDTO struct {
	ID        string     `json:"id"`
	ProductID string     `json:"product_id"`
	Quantity  int        `json:"quantity"`
	Products  productDTO `json:"products"`
	Profiles  profileDTO `json:"profiles"`
}

type cartResponseDTO struct {
	CartItems []cartItemDTO `json:"cartItems"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	items, err := h.svc.GetCart(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	resp := cartResponseDTO{CartItems: make([]cartItemDTO, 0, len(items))}
	for _, item := range items {
		resp.CartItems = append(resp.CartItems, toCartItemDTO(item))
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req addItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	item, err := h.svc.AddItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "product_not_found", "unknown product")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to add item")
		return
	}

	respondJSON(w, http.StatusCreated, toCartItemDTO(item))
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	itemID := chi.URLParam(r, "cartItemID")

	var req updateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Quantity <= 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	if err := h.svc.UpdateQuantity(r.Context(), userID, itemID, req.Quantity); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "cart item not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update quantity")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	itemID := chi.URLParam(r, "cartItemID")

	if err := h.svc.RemoveItem(r.Context(), userID, itemID); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "cart item not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to remove item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	if err := h.svc.ClearCart(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to clear cart")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toCartItemDTO(item repository.Item) cartItemDTO {
	return cartItemDTO{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Products: productDTO{
			ID:    item.Product.ID,
			Title: item.Product.Title,
			Price: item.Product.Price,
		},
		Profiles: profileDTO{
			ID:         item.Product.SellerID,
			FullName:   item.Product.SellerName,
			IsBusiness: item.Product.SellerBusiness,
			IsVerified: item.Product.SellerVerified,
		},
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{
		Error: message,
		Code:  code,
	})
}
