package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/nerrad567/docgate/internal/document"
)

// authed returns a request carrying a valid bearer token for alice.
func (e *testEnv) authed(t *testing.T, req *http.Request) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+e.issue(t, "alice"))
	req.Header.Set("Accept", "application/json")
	return req
}

func TestDocuments_CRUD(t *testing.T) {
	env := testServer(t)

	// Insert
	w := env.serve(env.authed(t, jsonRequest(http.MethodPost, "/db/notes", map[string]any{"title": "first", "n": 1})))
	if w.Code != http.StatusCreated {
		t.Fatalf("insert status = %d, want 201; body = %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	id, _ := created[document.IDField].(string) //nolint:errcheck // checked below
	if id == "" {
		t.Fatalf("inserted document has no %s: %v", document.IDField, created)
	}

	// Get
	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodGet, "/db/notes/"+id, nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	if got := decodeBody(t, w)["title"]; got != "first" {
		t.Errorf("title = %v, want first", got)
	}

	// Replace
	w = env.serve(env.authed(t, jsonRequest(http.MethodPut, "/db/notes/"+id, map[string]any{"title": "second"})))
	if w.Code != http.StatusOK {
		t.Fatalf("replace status = %d, want 200", w.Code)
	}
	replaced := decodeBody(t, w)
	if replaced["title"] != "second" || replaced[document.IDField] != id {
		t.Errorf("replaced = %v", replaced)
	}
	if _, ok := replaced["n"]; ok {
		t.Error("replace should drop fields not in the new body")
	}

	// Remove
	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodDelete, "/db/notes/"+id, nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d, want 200", w.Code)
	}

	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodGet, "/db/notes/"+id, nil)))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after remove status = %d, want 404", w.Code)
	}
}

func TestDocuments_Errors(t *testing.T) {
	env := testServer(t)
	if _, err := env.store.Insert(context.Background(), "notes", document.Document{"_id": "n1"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"replace missing", jsonRequest(http.MethodPut, "/db/notes/missing", map[string]any{"a": 1}), http.StatusNotFound},
		{"remove missing", httptest.NewRequest(http.MethodDelete, "/db/notes/missing", nil), http.StatusNotFound},
		{"duplicate id", jsonRequest(http.MethodPost, "/db/notes", map[string]any{"_id": "n1"}), http.StatusConflict},
		{"invalid collection", httptest.NewRequest(http.MethodGet, "/db/bad.name", nil), http.StatusBadRequest},
		{"non-object body", jsonRequest(http.MethodPost, "/db/notes", []int{1, 2}), http.StatusBadRequest},
		{"malformed q", httptest.NewRequest(http.MethodGet, "/db/notes?q="+url.QueryEscape("{nope"), nil), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.serve(env.authed(t, tt.req))
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestDocuments_FindWithFilter(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	for _, doc := range []document.Document{
		{"kind": "todo", "done": false},
		{"kind": "todo", "done": true},
		{"kind": "memo"},
	} {
		if _, err := env.store.Insert(ctx, "items", doc); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	q := url.QueryEscape(`{"kind":"todo","done":false}`)
	w := env.serve(env.authed(t, httptest.NewRequest(http.MethodGet, "/db/items?q="+q, nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var docs []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &docs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(docs) != 1 || docs[0]["done"] != false {
		t.Errorf("docs = %v, want the one open todo", docs)
	}
}

func TestDocuments_PatchAndBulk(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	for _, doc := range []document.Document{
		{"_id": "t1", "kind": "todo", "title": "one"},
		{"_id": "t2", "kind": "todo", "title": "two"},
		{"_id": "m1", "kind": "memo"},
	} {
		if _, err := env.store.Insert(ctx, "items", doc); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	// Patch one
	w := env.serve(env.authed(t, jsonRequest(http.MethodPatch, "/db/items/t1", map[string]any{"title": "uno"})))
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w); got["title"] != "uno" || got["kind"] != "todo" {
		t.Errorf("patched = %v, want title changed and kind kept", got)
	}

	w = env.serve(env.authed(t, jsonRequest(http.MethodPatch, "/db/items/missing", map[string]any{"a": 1})))
	if w.Code != http.StatusNotFound {
		t.Errorf("patch missing status = %d, want 404", w.Code)
	}

	// Patch by query
	q := url.QueryEscape(`{"kind":"todo"}`)
	w = env.serve(env.authed(t, jsonRequest(http.MethodPatch, "/db/items?q="+q, map[string]any{"done": true})))
	if w.Code != http.StatusOK {
		t.Fatalf("bulk patch status = %d, want 200", w.Code)
	}
	var updated []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(updated) != 2 {
		t.Errorf("bulk patch updated %d, want 2", len(updated))
	}

	// Delete by query
	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodDelete, "/db/items?q="+q, nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("bulk delete status = %d, want 200", w.Code)
	}
	if got := decodeBody(t, w)["removed"]; got != float64(2) {
		t.Errorf("removed = %v, want 2", got)
	}

	docs, _ := env.store.Find(ctx, "items", nil)
	if len(docs) != 1 || docs[0].ID() != "m1" {
		t.Errorf("remaining = %v, want only m1", docs)
	}

	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodDelete, "/db/items?q="+url.QueryEscape("{nope"), nil)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed q delete status = %d, want 400", w.Code)
	}
}

func TestCollections(t *testing.T) {
	env := testServer(t)

	w := env.serve(env.authed(t, jsonRequest(http.MethodPost, "/api/collections", map[string]string{"collection": "books"})))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", w.Code)
	}

	w = env.serve(env.authed(t, jsonRequest(http.MethodPost, "/api/collections", map[string]string{"collection": "books"})))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", w.Code)
	}

	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodGet, "/api/collections", nil)))
	var names []string
	if err := json.Unmarshal(w.Body.Bytes(), &names); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(names) != 1 || names[0] != "books" {
		t.Errorf("collections = %v, want [books]", names)
	}

	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodDelete, "/api/collections/books", nil)))
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}

	w = env.serve(env.authed(t, httptest.NewRequest(http.MethodDelete, "/api/collections/books", nil)))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestDocuments_RequireToken(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	req.Header.Set("Accept", "application/json")
	w := env.serve(req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
