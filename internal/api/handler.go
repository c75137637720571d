// Package api provides HTTP handlers for the storefront API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mkoval/haggleshop/internal/catalog"
	"github.com/mkoval/haggleshop/internal/identity"
	"github.com/mkoval/haggleshop/internal/negotiation"
)

// maxRequestBodySize is the maximum allowed request body size (64KB). Chat
// turns are short strings; anything bigger is abuse.
const maxRequestBodySize = 64 << 10

// Handler serves the storefront REST API.
type Handler struct {
	catalog  catalog.Catalog
	engine   *negotiation.Engine
	sessions *SessionManager
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(cat catalog.Catalog, engine *negotiation.Engine, sessions *SessionManager) *Handler {
	return &Handler{
		catalog:  cat,
		engine:   engine,
		sessions: sessions,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers the storefront routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/products", h.ListProducts)
	r.Get("/api/products/{productID}", h.GetProduct)
	r.Post("/api/products/{productID}/negotiate", h.StartNegotiation)
	r.Get("/api/sessions/{sessionID}", h.GetSession)
	r.Post("/api/sessions/{sessionID}/messages", h.PostMessage)
	r.Post("/api/sessions/{sessionID}/accept", h.AcceptPrice)
	r.Delete("/api/sessions/{sessionID}", h.CloseSession)
}

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		slog.Error("Failed to list products", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

// GetProduct returns one catalog product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	product, err := h.catalog.GetProduct(r.Context(), productID)
	if err != nil {
		slog.Error("Failed to get product", "product_id", productID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	if product == nil {
		Error(w, http.StatusNotFound, "product not found")
		return
	}
	JSON(w, http.StatusOK, product)
}

// StartNegotiation opens a negotiation session for the calling shopper.
func (h *Handler) StartNegotiation(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperIDFromContext(r.Context())
	productID := chi.URLParam(r, "productID")

	product, err := h.catalog.GetProduct(r.Context(), productID)
	if err != nil {
		slog.Error("Failed to get product", "product_id", productID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	if product == nil {
		Error(w, http.StatusNotFound, "product not found")
		return
	}

	session, err := h.engine.NewSession(negotiation.ProductInfo{
		ID:        product.ID,
		Name:      product.Name,
		ListPrice: product.ListPrice,
	})
	if err != nil {
		slog.Error("Failed to open negotiation", "product_id", productID, "error", err)
		Error(w, http.StatusUnprocessableEntity, "product cannot be negotiated")
		return
	}

	if err := h.sessions.Add(shopperID, session); err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}

	JSON(w, http.StatusCreated, session)
}

// GetSession returns the current snapshot of a session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.Get(shopperID, sessionID)
	if err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, session)
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type postMessageResponse struct {
	Session negotiation.Session `json:"session"`
	Reply   negotiation.Message `json:"reply"`
}

// PostMessage runs one negotiation turn over the shopper's message.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var reply negotiation.Message
	session, err := h.sessions.Update(shopperID, sessionID, func(s negotiation.Session) (negotiation.Session, error) {
		next, botMsg, err := h.engine.Advance(s, req.Text)
		if err != nil {
			return s, err
		}
		reply = botMsg
		return next, nil
	})
	if err != nil {
		h.writeSessionError(w, sessionID, err)
		return
	}

	slog.Info("Negotiation turn completed",
		"session_id", session.ID,
		"shopper_id", shopperID,
		"round", session.Round,
		"current_price", session.CurrentPrice,
	)
	JSON(w, http.StatusOK, postMessageResponse{Session: session, Reply: reply})
}

// AcceptPrice applies the explicit accept action to a session.
func (h *Handler) AcceptPrice(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.Update(shopperID, sessionID, func(s negotiation.Session) (negotiation.Session, error) {
		return h.engine.AcceptCurrentPrice(s)
	})
	if err != nil {
		h.writeSessionError(w, sessionID, err)
		return
	}

	slog.Info("Negotiated price accepted",
		"session_id", session.ID,
		"shopper_id", shopperID,
		"product_id", session.ProductID,
		"price", session.CurrentPrice,
	)
	JSON(w, http.StatusOK, session)
}

// CloseSession abandons and discards a session.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.sessions.Update(shopperID, sessionID, func(s negotiation.Session) (negotiation.Session, error) {
		return h.engine.Abandon(s), nil
	}); err != nil {
		h.writeSessionError(w, sessionID, err)
		return
	}

	if _, err := h.sessions.Remove(shopperID, sessionID); err != nil {
		h.writeSessionError(w, sessionID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeSessionError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, negotiation.ErrSessionNotActive):
		Error(w, http.StatusUnprocessableEntity, "invalid session state")
	default:
		slog.Error("Session operation failed", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
