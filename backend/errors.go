package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingBaseURL is returned when a client has no endpoint.
	ErrMissingBaseURL = errors.New("backend: base URL is required")

	// ErrMissingModel is returned when a chat or embedding model is not set.
	ErrMissingModel = errors.New("backend: model is required")

	// ErrMissingCollection is returned when the retriever has no collection name.
	ErrMissingCollection = errors.New("backend: collection is required")

	// ErrNilEmbedder is returned when the retriever is built without an embedder.
	ErrNilEmbedder = errors.New("backend: embedder is nil")

	// ErrNoChoices is returned when a chat completion has no choices.
	ErrNoChoices = errors.New("backend: completion returned no choices")

	// ErrNoEmbedding is returned when an embedding response is empty.
	ErrNoEmbedding = errors.New("backend: embedding response is empty")
)

// APIError is a non-2xx response from a backend.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %s returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether repeating the request can succeed.
// Rate limiting, request timeouts and server errors qualify.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	case http.StatusNotImplemented:
		return false
	}
	return e.StatusCode >= 500
}
