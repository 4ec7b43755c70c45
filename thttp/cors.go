package thttp

import (
	"net/http"

	"github.com/gorilla/handlers"
)

var (
	allowedMethods = []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodOptions,
	}
	allowedHeaders = []string{
		"Accept",
		"Cache-Control",
		"If-Modified-Since",
		"User-Agent",
		"X-Requested-With",
	}
	exposedHeaders = []string{
		"Content-Length",
		"Content-Type",
	}
)

// CORS is a middleware that allows cross-origin reads, so that dashboards in
// a browser can poll the endpoints
var CORS = handlers.CORS(
	handlers.AllowedMethods(allowedMethods),
	handlers.AllowedHeaders(allowedHeaders),
	handlers.ExposedHeaders(exposedHeaders),
	handlers.AllowedOrigins([]string{"*"}),
)
