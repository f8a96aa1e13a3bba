package errors

import "net/http"

// Predefined errors for the document-chat core. Every failure that crosses
// the service boundary maps onto one of these; raw internal errors are
// attached as causes and never serialized.
var (
	// Common (AA=00)
	ErrInvalidRequest = New(MakeCode(ServiceCommon, CategoryRequest, 1), http.StatusBadRequest, "Invalid request parameters")
	ErrInternal       = New(MakeCode(ServiceCommon, CategoryInternal, 1), http.StatusInternalServerError, "Internal error")

	// Vector index (AA=10)
	ErrDimensionMismatch = New(MakeCode(ServiceIndex, CategoryRequest, 1), http.StatusBadRequest, "Vector dimension does not match the index")
	ErrInvalidVector     = New(MakeCode(ServiceIndex, CategoryRequest, 2), http.StatusBadRequest, "Vector is invalid for similarity search")

	// Document registry (AA=11)
	ErrNotFound         = New(MakeCode(ServiceRegistry, CategoryNotFound, 1), http.StatusNotFound, "Document not found")
	ErrAlreadyFinalized = New(MakeCode(ServiceRegistry, CategoryConflict, 1), http.StatusConflict, "Document is already finalized")

	// Chat core (AA=20)
	ErrEmptyDocument = New(MakeCode(ServiceChat, CategoryRequest, 1), http.StatusBadRequest, "Document contains no usable text")
	ErrChatFailed    = New(MakeCode(ServiceChat, CategoryInternal, 1), http.StatusInternalServerError, "Chat request failed")

	// External capabilities (AA=90)
	ErrEmbeddingUnavailable  = New(MakeCode(ServiceCapability, CategoryUpstream, 1), http.StatusServiceUnavailable, "Embedding service unavailable")
	ErrCompletionUnavailable = New(MakeCode(ServiceCapability, CategoryUpstream, 2), http.StatusServiceUnavailable, "Completion service unavailable")
	ErrTimeout               = New(MakeCode(ServiceCapability, CategoryTimeout, 1), http.StatusGatewayTimeout, "Request timed out")
)
