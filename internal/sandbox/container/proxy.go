package container

import (
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/ertembiyik/rlm-engine/internal/router"
)

// proxy is a host-side HTTP server that forwards the sandbox's hook
// requests to the real router. A containerized child cannot reach the
// router's loopback address directly, so it is instead handed this
// proxy's address, reachable through the container's host gateway.
type proxy struct {
	listener net.Listener
	server   *http.Server
	port     int
}

func newProxy(target router.Address) (*proxy, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	forward := func(path string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			resp, err := http.Post(target.URL()+path, "application/json", r.Body)
			if err != nil {
				http.Error(w, fmt.Sprintf("proxy: %v", err), http.StatusBadGateway)
				return
			}
			defer resp.Body.Close()
			w.WriteHeader(resp.StatusCode)
			_, _ = io.Copy(w, resp.Body)
		}
	}
	mux.HandleFunc("/llm_query", forward("/llm_query"))
	mux.HandleFunc("/llm_query_batched", forward("/llm_query_batched"))

	server := &http.Server{Handler: mux}
	p := &proxy{listener: listener, server: server, port: listener.Addr().(*net.TCPAddr).Port}
	go func() { _ = server.Serve(listener) }()
	return p, nil
}

// addr returns the URL a container on the default bridge network should
// use to reach this proxy via the host gateway.
func (p *proxy) addr() string {
	return fmt.Sprintf("http://host.docker.internal:%d", p.port)
}

func (p *proxy) close() error {
	return p.server.Close()
}
