// Package httpmiddleware contains net/http middleware shared by the sales
// API server.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies mws to h so that the first middleware is the outermost one.
func Wrap(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RouteFinder returns the route pattern matched for r, or "" when r did not
// match any route. It is called after the wrapped handler returns.
type RouteFinder func(r *http.Request) string

func routeOf(find RouteFinder, r *http.Request) string {
	if find == nil {
		return ""
	}
	return find(r)
}
