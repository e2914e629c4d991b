package staticpage

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewHandlerInlinesSharedModule(t *testing.T) {
	doc := `<html><body><script src="shared.js"></script></body></html>`
	h := NewHandler(doc, `console.log("hi")`)
	if strings.Contains(h.rendered, "shared.js") {
		t.Fatalf("sentinel should have been replaced, got %s", h.rendered)
	}
	if !strings.Contains(h.rendered, `console.log("hi")`) {
		t.Fatalf("expected shared module inlined, got %s", h.rendered)
	}
}

func TestServeHTTPAlwaysServesSameDocument(t *testing.T) {
	h := NewHandler(`<html></html>`, ``)
	for _, path := range []string{"/", "/anything", "/../etc/passwd"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("path %s: status = %d", path, rec.Code)
		}
		if rec.Body.String() != "<html></html>" {
			t.Fatalf("path %s served different content: %s", path, rec.Body.String())
		}
	}
}
