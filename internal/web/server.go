package web

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/receipts-web/internal/receipt"
	"github.com/zombor/receipts-web/internal/upload"
)

// Receipts is the read side of the receipt backend
type Receipts interface {
	ListReceipts(ctx context.Context) ([]*receipt.Receipt, error)
	GetReceipt(ctx context.Context, id string) (*receipt.Receipt, error)
	Reprocess(ctx context.Context, r *receipt.Receipt) (*receipt.Receipt, error)
}

// Server renders the receipt screens
type Server struct {
	receipts  Receipts
	wizard    *upload.Wizard
	basicAuth BasicAuth
	mux       *http.ServeMux
	templates map[string]*template.Template
	http      *http.Server
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(receipts Receipts, wizard *upload.Wizard, basicAuth BasicAuth) *Server {
	return NewServerWithMux(receipts, wizard, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(receipts Receipts, wizard *upload.Wizard, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		receipts:  receipts,
		wizard:    wizard,
		basicAuth: basicAuth,
		mux:       mux,
		templates: parseTemplates(),
	}
	s.registerRoutes()
	s.http = &http.Server{
		Handler:           s.corsMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Receipts"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)

	// JSON views of the canonical model
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleAPIGetReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleAPIListReceipts))
	s.mux.HandleFunc("GET /api/stats", s.requireAuth(s.handleAPIStats))

	// Upload wizard
	s.mux.HandleFunc("GET /upload/preview.png", s.requireAuth(s.handleUploadPreview))
	s.mux.HandleFunc("GET /upload", s.requireAuth(s.handleUploadPage))
	s.mux.HandleFunc("POST /upload/select", s.requireAuth(s.handleUploadSelect))
	s.mux.HandleFunc("POST /upload/upload", s.requireAuth(s.handleUploadUpload))
	s.mux.HandleFunc("POST /upload/validate", s.requireAuth(s.handleUploadValidate))
	s.mux.HandleFunc("POST /upload/process", s.requireAuth(s.handleUploadProcess))
	s.mux.HandleFunc("POST /upload/reset", s.requireAuth(s.handleUploadReset))

	// Receipt screens
	s.mux.HandleFunc("POST /receipts/{id}/reprocess", s.requireAuth(s.handleReprocess))
	s.mux.HandleFunc("GET /receipts/{id}", s.requireAuth(s.handleDetail))
	s.mux.HandleFunc("GET /receipts", s.requireAuth(s.handleList))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleDashboard))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until the server stops
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("Starting server", "address", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
