package embed

import "fmt"

// ConfigurationError reports a required embedding setting that is missing.
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("embedding configuration: %s: %s", e.Setting, e.Message)
	}
	return fmt.Sprintf("embedding configuration: %s is not set", e.Setting)
}

// EmbeddingServiceError reports a failed or malformed call to the embedding backend.
type EmbeddingServiceError struct {
	// Status is the HTTP status code, or 0 when no response was received.
	Status  int
	Message string
	Err     error
}

func (e *EmbeddingServiceError) Error() string {
	msg := "embedding service: " + e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("embedding service: status %d: %s", e.Status, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }
