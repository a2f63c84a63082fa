package ai

import (
	"context"

	"fileflow-backend/pkg/config"

	"github.com/rs/zerolog/log"
)

// NewCascadeFromConfig builds the Gemini tier followed by the HuggingFace tier.
// Providers whose key is a placeholder are left out. The returned func releases
// the SDK clients.
func NewCascadeFromConfig(ctx context.Context, cfg *config.Config) (*Cascade, func(), error) {
	var providers []Provider
	cleanup := func() {}

	if config.IsPlaceholder(cfg.GeminiAPIKey) {
		log.Warn().Msg("[AI] GEMINI_API_KEY not configured, Gemini disabled")
	} else {
		gemini, err := NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = gemini.Close() }

		models := cfg.GeminiModels
		if len(models) == 0 {
			models = DefaultGeminiModels
		}
		for _, m := range models {
			providers = append(providers, gemini.Model(m))
		}
	}

	if config.IsPlaceholder(cfg.HFToken) {
		log.Warn().Msg("[AI] HF_TOKEN not configured, HuggingFace disabled")
	} else {
		hf := NewHFClient(cfg.HFToken, cfg.HFBaseURL, nil)
		models := cfg.HFModels
		if len(models) == 0 {
			models = DefaultHFModels
		}
		for _, m := range models {
			providers = append(providers, hf.Model(m))
		}
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	log.Info().Strs("providers", names).Msg("[AI] Provider cascade ready")

	return NewCascade(cfg.AITimeout, providers...), cleanup, nil
}
