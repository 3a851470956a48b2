package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server with conservative timeouts; request-level
// deadlines are handled by the timeout middleware.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
