package summarizer

import (
	"fmt"
	"os"
)

// envCredentialProvider resolves the summarizer's single backend
// credential from the environment, trying the bare key first and then a
// coordinator-prefixed variant. Grounded on the teacher's
// internal/agent/credentials.EnvProvider, trimmed from a pluggable
// provider registry (the agent launcher's model, serving many distinct
// credentials) down to the one credential the summarizer ever needs.
type envCredentialProvider struct {
	prefix string
}

func newEnvCredentialProvider(prefix string) *envCredentialProvider {
	return &envCredentialProvider{prefix: prefix}
}

func (p *envCredentialProvider) lookup(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	if p.prefix != "" {
		if v := os.Getenv(p.prefix + key); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("credential not found: %s", key)
}
