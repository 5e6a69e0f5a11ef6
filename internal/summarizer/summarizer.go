// Package summarizer implements the best-effort LLM summarizer adapter
// of §4.3: a single operation summarize(run, breakpoint) -> text | none.
// Any failure (network, rate limit, missing credential) yields none and
// logs a warning; it never raises into the controller. Credential
// lookup is grounded on the teacher's internal/agent/credentials
// env-provider (a named environment variable, optionally looked up
// behind a Manager), scaled down to the summarizer's single external
// credential rather than the agent's provider-registry pattern (the
// summarizer never needs more than one backend credential at a time).
package summarizer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/agentbreak/coordinator/internal/common/config"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/pkg/model"
)

// Backend is the narrow seam an LLM provider implements; it is allowed to
// fail for any reason, the Adapter treats every error identically.
type Backend interface {
	Summarize(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// Adapter is the summarizer of §4.3.
type Adapter struct {
	enabled bool
	model   string
	apiKey  string
	backend Backend
	timeout time.Duration
	logger  *logger.Logger
}

// New builds an Adapter from configuration. When cfg.Enabled is false, or
// no credential is found in the environment, the adapter is still
// constructed but every Summarize call returns (..., false) immediately
// — matching §4.3's "best effort" framing without a separate no-op type.
func New(cfg config.SummarizerConfig, backend Backend, lg *logger.Logger) *Adapter {
	creds := newEnvCredentialProvider("AGENTBREAK_")
	apiKey, _ := creds.lookup(cfg.CredentialEnv)
	return &Adapter{
		enabled: cfg.Enabled,
		model:   cfg.Model,
		apiKey:  apiKey,
		backend: backend,
		timeout: 5 * time.Second,
		logger:  lg,
	}
}

// Summarize asks the backend for a one-line summary of bp's payload. It
// never returns an error: failures are logged at warn level and reported
// as (\"\", false).
func (a *Adapter) Summarize(ctx context.Context, run *model.Run, bp *model.Breakpoint) (string, bool) {
	if !a.enabled || a.backend == nil {
		return "", false
	}
	if a.apiKey == "" {
		a.logger.Warn("summarizer has no credential configured, skipping", zap.String("run", run.UUID))
		return "", false
	}

	prompt := promptFor(bp)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.backend.Summarize(ctx, a.apiKey, a.model, prompt)
	if err != nil {
		a.logger.Warn("summarizer failed, leaving summary empty",
			zap.String("run", run.UUID), zap.String("breakpoint", bp.UUID), zap.Error(err))
		return "", false
	}
	return text, text != ""
}

func promptFor(bp *model.Breakpoint) string {
	if bp.OriginalData.Kind == "text" {
		return bp.OriginalData.Text
	}
	if raw, err := json.Marshal(bp.OriginalData.JSON); err == nil {
		return string(raw)
	}
	return "Summarize this structured payload in one line."
}
