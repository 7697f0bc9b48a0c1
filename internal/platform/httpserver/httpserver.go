package httpserver

import (
	"net/http"
	"time"
)

// New builds the verification server with defaults suited to its clients:
// field devices submit small JSON bodies over flaky links, so the header
// timeout is the only hard server-side limit; per-request deadlines come
// from the router's timeout middleware.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}
}
