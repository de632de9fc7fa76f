package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. ReadHeaderTimeout guards against slow-header
// clients holding connections open.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
