package handler

import "github.com/erp/catalog-engine/internal/interfaces/http/dto"

// APIResponse is the typed envelope used in the OpenAPI documentation
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse represents an error API response for OpenAPI documentation
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// ListingDocument is one product of a storefront listing, shaped like the
// search document
// @Description Search document of a listed product
type ListingDocument map[string]any

// HealthResponse is the body of GET /health
// @Description Liveness of the service and its database
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Time     string `json:"time" example:"2026-01-02T15:04:05Z"`
	Database string `json:"database" example:"ok"`
}
