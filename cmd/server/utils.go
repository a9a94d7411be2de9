package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mahino/scalar"
)

// parseRuleSetPath parses /api/v1/rulesets, /api/v1/rulesets/{id}, or
// /api/v1/rulesets/{id}/{history|responses}
func parseRuleSetPath(path string) (id string, sub string, err error) {
	path = strings.TrimPrefix(path, "/api/v1/rulesets")
	path = strings.Trim(path, "/")

	if path == "" {
		return "", "", nil
	}

	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		if parts[1] != "history" && parts[1] != "responses" {
			return "", "", fmt.Errorf("unknown subresource: %s", parts[1])
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid path format")
	}
}

// APIResponse is the standard response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeEngineError maps library error types onto HTTP status codes
func writeEngineError(w http.ResponseWriter, err error) error {
	status := http.StatusInternalServerError
	var scalarErr *scalar.ScalarError
	if errors.As(err, &scalarErr) {
		switch scalarErr.Type {
		case scalar.ErrorTypeValidation, scalar.ErrorTypePipeline:
			status = http.StatusBadRequest
		case scalar.ErrorTypeNotFound:
			status = http.StatusNotFound
		case scalar.ErrorTypeReference:
			status = http.StatusBadGateway
		}
	}
	return writeError(w, status, err.Error())
}

// readRawBody reads the request body so it can be schema validated
// before decoding
func readRawBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 16<<20))
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
