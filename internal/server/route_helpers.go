package server

import (
	"net/http"
	"strings"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod routes requests based on HTTP method with standardized error handling
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// ParamHandler is a handler taking the resource key parsed from the path
type ParamHandler func(http.ResponseWriter, *http.Request, string)

// PathSuffixRouter checks if path ends with a specific suffix and routes to handler
type PathSuffixRouter struct {
	Suffix  string
	Handler ParamHandler
}

// RouteByPathSuffix routes requests based on path suffix, passing the
// segment between prefix and suffix to the handler.
// Returns true if a route was matched and handled
func RouteByPathSuffix(w http.ResponseWriter, r *http.Request, prefix string, routes []PathSuffixRouter) bool {
	path := r.URL.Path
	if len(path) <= len(prefix) {
		return false
	}

	pathSuffix := path[len(prefix):]
	for _, route := range routes {
		if strings.HasSuffix(pathSuffix, route.Suffix) {
			key := strings.Trim(strings.TrimSuffix(pathSuffix, route.Suffix), "/")
			route.Handler(w, r, key)
			return true
		}
	}
	return false
}

// RouteResourceItem handles the get + delete pattern on /{prefix}/{id}
func RouteResourceItem(w http.ResponseWriter, r *http.Request, prefix string, get, del ParamHandler) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	routes := make(MethodRouter)
	if get != nil {
		routes[http.MethodGet] = func(w http.ResponseWriter, r *http.Request) { get(w, r, id) }
	}
	if del != nil {
		routes[http.MethodDelete] = func(w http.ResponseWriter, r *http.Request) { del(w, r, id) }
	}
	RouteByMethod(w, r, routes)
}
