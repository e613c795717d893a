package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"courier/internal/identity"
	"courier/pkg/interfaces"
	"courier/pkg/types"
)

const (
	DefaultHistoryLimit = 50
	healthTimeout       = 5 * time.Second
	internalError       = "Internal Server Error"
)

// Identities resolves usernames for POST /join
type Identities interface {
	Join(ctx context.Context, name string) (*types.Identity, error)
}

// Directory is the read side of the presence directory
type Directory interface {
	List(search string, offset, limit int) types.DirectoryPage
	Count() int
}

// Store is the slice of the backing store the HTTP surface needs
type Store interface {
	interfaces.MessageStore
	HealthCheck(ctx context.Context) error
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	identities   Identities
	directory    Directory
	store        Store
	websocket    http.Handler
	historyLimit int
	log          logrus.FieldLogger
	router       *http.ServeMux
}

// NewServer wires the HTTP routes. websocket may be nil, in which case /ws is not served.
func NewServer(identities Identities, directory Directory, store Store, websocket http.Handler, historyLimit int, log logrus.FieldLogger) *Server {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	s := &Server{
		identities:   identities,
		directory:    directory,
		store:        store,
		websocket:    websocket,
		historyLimit: historyLimit,
		log:          log.WithField("component", "api"),
		router:       http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.root)
	s.router.Handle("GET /online-users", jsonMiddleware(http.HandlerFunc(s.onlineUsers)))
	s.router.Handle("POST /join", jsonMiddleware(http.HandlerFunc(s.join)))
	s.router.Handle("GET /messages/{id}", jsonMiddleware(http.HandlerFunc(s.history)))
	s.router.Handle("DELETE /messages/{messageId}", jsonMiddleware(http.HandlerFunc(s.deleteMessage)))
	s.router.Handle("GET /health", jsonMiddleware(http.HandlerFunc(s.healthCheck)))
	if s.websocket != nil {
		s.router.Handle("GET /ws", s.websocket)
	}
}

// ServeHTTP applies CORS to every route, including preflight requests the mux would reject
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corsMiddleware(s.router).ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Database    string    `json:"database"`
	OnlineUsers int       `json:"onlineUsers"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Courier relay is running"))
}

// FUNCTIONAL DISCOVERY: GET /online-users - unparsable skip/take fall back to the directory defaults
func (s *Server) onlineUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	skip, _ := strconv.Atoi(query.Get("skip"))
	take, _ := strconv.Atoi(query.Get("take"))

	s.writeJSON(w, http.StatusOK, s.directory.List(query.Get("search"), skip, take))
}

// FUNCTIONAL DISCOVERY: POST /join - returns the existing identity or creates one on first use
func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	var req types.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, ErrInvalidJSON.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.identities.Join(r.Context(), req.Username)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, user)
	case errors.Is(err, identity.ErrInvalidName):
		s.sendError(w, ErrUsernameRequired.Error(), http.StatusBadRequest)
	default:
		s.internalError(w, "join", err)
	}
}

// FUNCTIONAL DISCOVERY: GET /messages/{id} - most recent messages sent or received by the identity
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.GetConversation(r.Context(), r.PathValue("id"), s.historyLimit)
	if err != nil {
		s.internalError(w, "history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

// FUNCTIONAL DISCOVERY: DELETE /messages/{messageId} - deleting an already removed message still succeeds,
// since acknowledgment or the sweep may have won the race
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteMessage(r.Context(), r.PathValue("messageId"))
	if err != nil && !errors.Is(err, interfaces.ErrMessageNotFound) {
		s.internalError(w, "delete message", err)
		return
	}
	s.writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "Message deleted successfully"})
}

// FUNCTIONAL DISCOVERY: GET /health - 503 when the store is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	response := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Database:    "healthy",
		OnlineUsers: s.directory.Count(),
	}
	code := http.StatusOK

	if err := s.store.HealthCheck(ctx); err != nil {
		s.log.WithError(err).Warn("Store health check failed")
		response.Status = "unhealthy"
		response.Database = "unavailable"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, response)
}

// internalError logs the cause and returns a body without detail
func (s *Server) internalError(w http.ResponseWriter, operation string, err error) {
	s.log.WithError(err).WithField("operation", operation).Error("Request failed")
	s.sendError(w, internalError, http.StatusInternalServerError)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("Failed to write response")
	}
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access from any origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
