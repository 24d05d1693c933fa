package router

import (
	"sort"
	"strings"

	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/response"
	"github.com/Brownie44l1/nbhttp/internal/server"
)

// Route represents a single route
type Route struct {
	Method  request.Method
	Path    string
	Handler server.HandlerFunc
	Params  []string // Parameter names (e.g., ["id", "name"])
}

// Router matches decoded requests by method and path. Routes are tried in
// registration order.
type Router struct {
	routes   []*Route
	notFound server.HandlerFunc
}

var _ server.Handler = (*Router)(nil)

func New() *Router {
	return &Router{}
}

// Handle registers a new route
func (r *Router) Handle(method request.Method, path string, handler server.HandlerFunc) {
	r.routes = append(r.routes, &Route{
		Method:  method,
		Path:    path,
		Handler: handler,
		Params:  extractParams(path),
	})
}

func (r *Router) GET(path string, handler server.HandlerFunc) {
	r.Handle(request.MethodGet, path, handler)
}

func (r *Router) POST(path string, handler server.HandlerFunc) {
	r.Handle(request.MethodPost, path, handler)
}

func (r *Router) PUT(path string, handler server.HandlerFunc) {
	r.Handle(request.MethodPut, path, handler)
}

func (r *Router) DELETE(path string, handler server.HandlerFunc) {
	r.Handle(request.MethodDelete, path, handler)
}

func (r *Router) PATCH(path string, handler server.HandlerFunc) {
	r.Handle(request.MethodPatch, path, handler)
}

// NotFound replaces the default 404 handler
func (r *Router) NotFound(handler server.HandlerFunc) {
	r.notFound = handler
}

// Match finds a route that matches the given method and path
func (r *Router) Match(method request.Method, path string) (*Route, map[string]string) {
	for _, route := range r.routes {
		if route.Method != method {
			continue
		}
		if params := matchPath(route.Path, path); params != nil {
			return route, params
		}
	}
	return nil, nil
}

// allowed lists the methods registered for a path
func (r *Router) allowed(path string) []string {
	seen := make(map[string]bool)
	var methods []string
	for _, route := range r.routes {
		if seen[string(route.Method)] {
			continue
		}
		if matchPath(route.Path, path) != nil {
			seen[string(route.Method)] = true
			methods = append(methods, string(route.Method))
		}
	}
	sort.Strings(methods)
	return methods
}

// ServeHTTP dispatches to the matching route. A path registered under
// other methods gets 405 with an Allow header.
func (r *Router) ServeHTTP(ctx *server.Context) {
	method, path := ctx.Request.Method(), ctx.Path()

	route, params := r.Match(method, path)
	if route != nil {
		ctx.SetParams(params)
		route.Handler(ctx)
		return
	}

	if methods := r.allowed(path); len(methods) > 0 {
		ctx.Response.Header().Set("Allow", strings.Join(methods, ", "))
		ctx.Error(response.StatusMethodNotAllowed, "")
		return
	}

	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.Error(response.StatusNotFound, "")
}

// extractParams extracts parameter names from a path pattern
// Example: "/users/:id/posts/:postId" -> ["id", "postId"]
func extractParams(path string) []string {
	var params []string
	for _, part := range strings.Split(path, "/") {
		if strings.HasPrefix(part, ":") {
			params = append(params, part[1:])
		}
	}
	return params
}

// matchPath checks if a request path matches a route pattern.
// Returns parameter values if match, nil otherwise.
func matchPath(pattern, path string) map[string]string {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return nil
	}

	params := make(map[string]string)
	for i, patternPart := range patternParts {
		pathPart := pathParts[i]

		if strings.HasPrefix(patternPart, ":") {
			if pathPart == "" {
				return nil
			}
			params[patternPart[1:]] = pathPart
		} else if patternPart != pathPart {
			return nil
		}
	}

	return params
}
