// Package staticpage serves the single HTML document described in spec
// section 6.4: the server never serves arbitrary paths from disk, only
// this one document, with a shared-module sentinel substituted in.
package staticpage

import (
	"net/http"
	"strings"
)

// scriptSentinel is the tag substituted with the inlined shared module,
// per spec section 6.4.
const scriptSentinel = `<script src="shared.js"></script>`

// Handler serves Document (with SharedModule inlined in place of the
// sentinel) for every request, regardless of path — the single-file
// policy is a deliberate security stance, not an oversight, grounded on
// scm/network.go's HTTPStaticGetter generalized down from "serve a whole
// directory" to "serve exactly one document."
type Handler struct {
	Document     string
	SharedModule string

	rendered string
}

// NewHandler pre-renders the document once so ServeHTTP never has to pay
// the substitution cost per request.
func NewHandler(document, sharedModule string) *Handler {
	return &Handler{
		Document:     document,
		SharedModule: sharedModule,
		rendered:     strings.Replace(document, scriptSentinel, "<script>"+sharedModule+"</script>", 1),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(h.rendered))
}
