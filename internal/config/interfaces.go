package config

import "context"

// SecretProvider resolves secret references (SSM parameter paths in deployed
// environments, variable names locally) to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns a map of key -> value for every key it could
	// resolve. Implementations batch requests internally.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
