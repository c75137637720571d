package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mkoval/haggleshop/internal/catalog"
	"github.com/mkoval/haggleshop/internal/identity"
	"github.com/mkoval/haggleshop/internal/negotiation"
)

type fakeCatalog struct {
	products map[string]catalog.Product
}

func (f *fakeCatalog) ListProducts(_ context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeCatalog) Ping(_ context.Context) error { return nil }
func (f *fakeCatalog) Close() error                 { return nil }

const testShopperID = "shopper_0123456789abcdef0123456789abcdef"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cat := &fakeCatalog{products: map[string]catalog.Product{
		"lamp-aurora": {ID: "lamp-aurora", Name: "Aurora Desk Lamp", ListPrice: 299.99},
	}}
	h := NewHandler(cat, negotiation.NewEngine(), NewSessionManager())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithShopperID(req.Context(), testShopperID)))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, router http.Handler) negotiation.Session {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/products/lamp-aurora/negotiate", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var session negotiation.Session
	if err := json.NewDecoder(w.Body).Decode(&session); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	return session
}

func TestStartNegotiation(t *testing.T) {
	router := newTestRouter(t)

	session := startSession(t, router)
	if session.ProductID != "lamp-aurora" {
		t.Errorf("Expected product lamp-aurora, got %q", session.ProductID)
	}
	if session.CurrentPrice != 299.99 {
		t.Errorf("Expected current price 299.99, got %v", session.CurrentPrice)
	}
	if len(session.History) != 1 {
		t.Errorf("Expected greeting in history, got %d messages", len(session.History))
	}
}

func TestStartNegotiation_UnknownProduct(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/products/nope/negotiate", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestStartNegotiation_DuplicateProduct(t *testing.T) {
	router := newTestRouter(t)
	startSession(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/products/lamp-aurora/negotiate", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestPostMessage_CounterOffer(t *testing.T) {
	router := newTestRouter(t)
	session := startSession(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/messages", session.ID),
		postMessageRequest{Text: "$260"},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp postMessageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Session.CurrentPrice != 269.99 {
		t.Errorf("Expected counter 269.99, got %v", resp.Session.CurrentPrice)
	}
	if resp.Reply.ProposedPrice == nil || *resp.Reply.ProposedPrice != 269.99 {
		t.Errorf("Expected reply proposing 269.99, got %v", resp.Reply.ProposedPrice)
	}
	if len(resp.Session.History) != 3 {
		t.Errorf("Expected greeting + turn pair in history, got %d messages", len(resp.Session.History))
	}
}

func TestPostMessage_UnknownSession(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/sessions/nope/messages", postMessageRequest{Text: "$260"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestPostMessage_InvalidBody(t *testing.T) {
	router := newTestRouter(t)
	session := startSession(t, router)

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/messages", session.ID),
		bytes.NewBufferString("{not json"),
	)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestAcceptPrice_FreezesSession(t *testing.T) {
	router := newTestRouter(t)
	session := startSession(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/messages", session.ID),
		postMessageRequest{Text: "$260"},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/accept", session.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var accepted negotiation.Session
	if err := json.NewDecoder(w.Body).Decode(&accepted); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if accepted.Status != negotiation.StatusAccepted {
		t.Errorf("Expected status accepted, got %v", accepted.Status)
	}
	if accepted.CurrentPrice != 269.99 {
		t.Errorf("Expected price frozen at 269.99, got %v", accepted.CurrentPrice)
	}

	// Further turns must be rejected, not silently negotiated.
	w = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/messages", session.ID),
		postMessageRequest{Text: "$100"},
	)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 after accept, got %d", w.Code)
	}
}

func TestCloseSession(t *testing.T) {
	router := newTestRouter(t)
	session := startSession(t, router)

	w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/sessions/%s", session.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sessions/%s", session.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after close, got %d", w.Code)
	}

	// The product slot is free again.
	w = doJSON(t, router, http.MethodPost, "/api/products/lamp-aurora/negotiate", nil)
	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201 after close, got %d", w.Code)
	}
}

func TestGetSession(t *testing.T) {
	router := newTestRouter(t)
	session := startSession(t, router)

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sessions/%s", session.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got negotiation.Session
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("Expected session %s, got %s", session.ID, got.ID)
	}
}
