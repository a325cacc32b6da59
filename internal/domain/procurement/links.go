package procurement

import (
	"net/url"
	"strings"

	"backoffice/internal/domain/token"
)

// LinkBuilder turns a capability token into the URL sent to the supplier.
type LinkBuilder func(kind token.Kind, tok string) string

// PublicLinks builds links to the public supplier endpoints under baseURL.
func PublicLinks(baseURL string) LinkBuilder {
	base := strings.TrimRight(baseURL, "/")
	return func(kind token.Kind, tok string) string {
		return base + "/api/v1/public/" + KindPath(kind) + "/" + url.PathEscape(tok)
	}
}

// KindPath is the URL segment for an order kind.
func KindPath(kind token.Kind) string {
	if kind == token.KindReorder {
		return "reorders"
	}
	return "purchase-orders"
}
