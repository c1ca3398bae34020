package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Transport errors
	CodeStreamConnectionFailed: "Failed to connect to depth stream",
	CodeStreamReconnecting:     "Depth stream reconnecting",
	CodeStreamClosed:           "Depth stream closed",
	CodeMalformedFrame:         "Malformed stream frame",

	// Order book errors
	CodeSequenceGap:         "Sequence gap detected in depth stream",
	CodeStaleDelta:          "Delta is older than the current book cursor",
	CodeBridgeNotFound:      "No buffered delta bridges the snapshot cursor",
	CodeBookStale:           "Order book is stale and cannot be reconciled",
	CodeBookNotLive:         "Order book is not live",
	CodeSnapshotUnreachable: "Failed to fetch order book snapshot",
	CodeSnapshotInvalid:     "Invalid order book snapshot",

	// Metrics errors
	CodeEmptyBookSide:         "Order book side is empty",
	CodeInsufficientLiquidity: "Insufficient liquidity for notional size",
	CodeMetricOverflow:        "Metric calculation overflow",

	// Persistence errors
	CodeSinkUnavailable: "Persistence sink unavailable",
	CodeSinkWriteFailed: "Failed to write to persistence sink",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
