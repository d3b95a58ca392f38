package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storefront/internal/access"
	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/funnel"
)

type Handler struct {
	carts    *cart.Service
	resolver *access.Resolver
	recorder *funnel.Recorder
	timeout  time.Duration
	log      zerolog.Logger
}

func NewHandler(carts *cart.Service, resolver *access.Resolver, recorder *funnel.Recorder, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		carts:    carts,
		resolver: resolver,
		recorder: recorder,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductSlug      string                   `json:"product_slug"`
	Title            string                   `json:"title"`
	UnitPriceCents   int64                    `json:"unit_price_cents"`
	AcquisitionType  domain.AcquisitionType   `json:"acquisition_type"`
	RentalMonths     *int                     `json:"rental_months,omitempty"`
	IsPackage        bool                     `json:"is_package"`
	PackageID        string                   `json:"package_id,omitempty"`
	SubscriptionPlan domain.SubscriptionPlan  `json:"subscription_plan,omitempty"`
	IncludedProducts []domain.IncludedProduct `json:"included_products,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Items      []domain.CartItem `json:"items"`
	TotalCents int64             `json:"total_cents"`
	ItemCount  int               `json:"item_count"`
}

type StageResponseDTO struct {
	Stage string `json:"stage"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func cartResponse(c *domain.Cart) CartResponseDTO {
	return CartResponseDTO{
		Items:      c.Items,
		TotalCents: c.TotalCents(),
		ItemCount:  c.ItemCount(),
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.carts.Get(ctx, cartKeyFromContext(r.Context()))
	if err != nil {
		h.log.Error().Err(err).Msg("get cart failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if code, msg := validateAddItem(&req); code != "" {
		respondError(w, http.StatusBadRequest, code, msg)
		return
	}

	item := domain.CartItem{
		ProductSlug:      req.ProductSlug,
		Title:            req.Title,
		UnitPriceCents:   req.UnitPriceCents,
		AcquisitionType:  req.AcquisitionType,
		RentalMonths:     req.RentalMonths,
		IsPackage:        req.IsPackage,
		PackageID:        req.PackageID,
		SubscriptionPlan: req.SubscriptionPlan,
		IncludedProducts: req.IncludedProducts,
	}

	user := userFromContext(r.Context())
	c, err := h.carts.AddItem(ctx, cartKeyFromContext(r.Context()), user.ID, item)
	if err != nil {
		h.log.Error().Err(err).Msg("add item failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to add item")
		return
	}

	respondJSON(w, http.StatusCreated, cartResponse(c))
}

func validateAddItem(req *AddItemRequestDTO) (code, msg string) {
	if req.IsPackage && req.PackageID == "" {
		return "invalid_package_id", "package items require package_id"
	}
	if !req.IsPackage && req.ProductSlug == "" {
		return "invalid_product_slug", "product_slug is required"
	}
	if !req.AcquisitionType.Valid() {
		return "invalid_acquisition_type", "acquisition_type must be purchase, rental or subscription"
	}
	if req.UnitPriceCents < 0 {
		return "invalid_unit_price", "unit_price_cents must not be negative"
	}
	if req.AcquisitionType == domain.AcquisitionRental {
		if req.RentalMonths == nil || *req.RentalMonths <= 0 {
			return "invalid_rental_months", "rental items require positive rental_months"
		}
	} else if req.RentalMonths != nil {
		return "invalid_rental_months", "rental_months is only valid for rentals"
	}
	if req.SubscriptionPlan != "" && req.SubscriptionPlan != domain.PlanMonthly && req.SubscriptionPlan != domain.PlanSemiannual {
		return "invalid_subscription_plan", "subscription_plan must be monthly or semiannual"
	}
	return "", ""
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productSlug := chi.URLParam(r, "product_slug")
	packageID := r.URL.Query().Get("package_id")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user := userFromContext(r.Context())
	c, err := h.carts.UpdateQuantity(ctx, cartKeyFromContext(r.Context()), user.ID, productSlug, req.Quantity, packageID)
	if err != nil {
		h.log.Error().Err(err).Msg("update quantity failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update quantity")
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productSlug := chi.URLParam(r, "product_slug")
	packageID := r.URL.Query().Get("package_id")

	user := userFromContext(r.Context())
	c, err := h.carts.RemoveItem(ctx, cartKeyFromContext(r.Context()), user.ID, productSlug, packageID)
	if err != nil {
		h.log.Error().Err(err).Msg("remove item failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to remove item")
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())
	if err := h.carts.Clear(ctx, cartKeyFromContext(r.Context()), user.ID); err != nil {
		h.log.Error().Err(err).Msg("clear cart failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to clear cart")
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(&domain.Cart{}))
}

// Checkout moves the user's funnel record to the checkout stage.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())
	if user.ID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "checkout requires authentication")
		return
	}

	c, err := h.carts.Get(ctx, cartKeyFromContext(r.Context()))
	if err != nil {
		h.log.Error().Err(err).Msg("checkout cart load failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}
	if c.Empty() {
		respondError(w, http.StatusConflict, "empty_cart", "cannot check out an empty cart")
		return
	}

	if err := h.recorder.MarkStage(ctx, user.ID, domain.StageCheckout); err != nil {
		if errors.Is(err, funnel.ErrNoOpenCart) {
			respondError(w, http.StatusConflict, "no_open_cart", "no open funnel record for user")
			return
		}
		h.log.Error().Err(err).Msg("checkout stage transition failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to start checkout")
		return
	}

	respondJSON(w, http.StatusOK, StageResponseDTO{Stage: domain.StageCheckout.String()})
}

// CompleteCheckout closes the funnel record as purchased and empties the
// cart. The clear does not notify the recorder, so the purchased close is
// not overwritten by a cleared close.
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())
	if user.ID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "checkout requires authentication")
		return
	}

	if err := h.recorder.MarkStage(ctx, user.ID, domain.StagePurchased); err != nil && !errors.Is(err, funnel.ErrNoOpenCart) {
		h.log.Error().Err(err).Msg("purchased stage transition failed")
	}

	if err := h.carts.Clear(ctx, cartKeyFromContext(r.Context()), ""); err != nil {
		h.log.Error().Err(err).Msg("post-purchase cart clear failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to clear cart")
		return
	}

	respondJSON(w, http.StatusOK, StageResponseDTO{Stage: domain.StagePurchased.String()})
}

// CheckAccess resolves product access for the caller. Resolution failures
// answer denied with a distinguishable status, never granted.
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	slug := chi.URLParam(r, "slug")
	user := userFromContext(r.Context())

	grant, err := h.resolver.Resolve(ctx, user, slug)
	if err != nil {
		h.log.Error().Err(err).Str("product_slug", slug).Msg("access resolution failed")
		respondJSON(w, http.StatusServiceUnavailable, domain.Grant{})
		return
	}

	respondJSON(w, http.StatusOK, grant)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
