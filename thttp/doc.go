// Package thttp contains HTTP server utilities.
//
// # HTTP Server
//
// thttp.Server wraps http.Server so that it is controlled by the context passed
// to its Run method instead of separate start and stop calls. Every request
// context inherits from the context passed to Run, so the logger stored there
// is available in handlers. Graceful shutdown is performed when the context
// is closed.
//
// Only a single handler is passed to thttp.NewServer. Path-based routing is
// done with github.com/gorilla/mux:
//
//	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
//	    listener, err := tnet.Listen(addr)
//	    if err != nil {
//	        return err
//	    }
//
//	    router := mux.NewRouter()
//	    router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
//
//	    server := thttp.NewServer(listener, thttp.Wrap(router, thttp.StandardMiddleware))
//	    spawn("http", parallel.Fail, server.Run)
//	    return nil
//	})
//
// # Middleware
//
// A middleware takes an http.Handler and returns an http.Handler. thttp.Wrap
// applies any number of them so that the first one listed is the first to see
// the incoming request. thttp.StandardMiddleware is equivalent to listing
// thttp.Log, thttp.Recover and thttp.CORS, in this order.
//
// # Logging
//
// Handlers log through the logger embedded in the request context:
//
//	logger := tlog.Get(r.Context())
//
// It carries the listening address and the remote address of the client. With
// thttp.Log installed it also carries the method, host and URL of the request.
//
// In case of an internal error, just panic: thttp.Recover logs the error with
// the panic stack, the client receives a generic error 500 and the server is
// shut down gracefully.
package thttp
