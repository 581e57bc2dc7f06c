package model

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the HTTP status code, a human-readable message, and
// optional machine-readable context.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// IntrospectionSummary reports the outcome of one successful introspection
// pass: how much was discovered and saved, and how many relation
// candidates were dropped because their endpoints could not be resolved.
type IntrospectionSummary struct {
	ConnectionID     int64 `json:"connection_id"`
	TableCount       int   `json:"table_count"`
	RelationCount    int   `json:"relation_count"`
	SkippedRelations int   `json:"skipped_relations"`
}
