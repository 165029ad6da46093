package xmlrpc

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// maxRequestBytes bounds the size of an incoming methodCall.
const maxRequestBytes = 8 << 20

// HandlerFunc serves one XML-RPC method.
type HandlerFunc func(ctx context.Context, params []any) (any, error)

// Server dispatches methodCalls to registered handlers by exact method name.
type Server struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

func NewServer() *Server {
	return &Server{methods: make(map[string]HandlerFunc)}
}

// Register binds fn to method, replacing any previous binding.
func (s *Server) Register(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = fn
}

// Methods returns the registered method names in sorted order.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.methods))
	for m := range s.methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	method, params, err := DecodeCall(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeFault(w, &Fault{Code: FaultParse, String: err.Error()})
		return
	}

	s.mu.RLock()
	fn := s.methods[method]
	s.mu.RUnlock()
	if fn == nil {
		writeFault(w, &Fault{Code: FaultMethodNotFound, String: "no such method: " + method})
		return
	}

	result, err := fn(r.Context(), params)
	if err != nil {
		var f *Fault
		if !errors.As(err, &f) {
			f = &Fault{Code: FaultApplication, String: err.Error()}
		}
		writeFault(w, f)
		return
	}

	body, err := EncodeResponse(result)
	if err != nil {
		writeFault(w, &Fault{Code: FaultInternal, String: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(body)
}

// Faults travel with HTTP 200, as XML-RPC requires.
func writeFault(w http.ResponseWriter, f *Fault) {
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(EncodeFault(f))
}
