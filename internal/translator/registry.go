package translator

import (
	"fmt"
	"sort"
)

// Factory builds a backend from its configuration.
type Factory func(cfg ServiceConfig) TranslationService

var factories = map[string]Factory{
	"ollama":     func(cfg ServiceConfig) TranslationService { return NewOllamaTranslator(cfg) },
	"openrouter": func(cfg ServiceConfig) TranslationService { return NewOpenRouterService(cfg) },
	"anthropic":  func(cfg ServiceConfig) TranslationService { return NewAnthropicService(cfg) },
	"gemini":     func(cfg ServiceConfig) TranslationService { return NewGeminiService(cfg) },
	"google":     func(cfg ServiceConfig) TranslationService { return NewGoogleService(cfg) },
	"mymemory":   func(cfg ServiceConfig) TranslationService { return NewMyMemoryService(cfg) },
	"systran":    func(cfg ServiceConfig) TranslationService { return NewSystranService(cfg) },
}

// Names lists the known backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named backend, wrapped in a rate limiter when
// cfg.RateLimit is positive.
func New(name string, cfg ServiceConfig) (TranslationService, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	svc := factory(cfg)
	if cfg.RateLimit > 0 {
		svc = RateLimited(svc, cfg.RateLimit, cfg.Burst)
	}
	return svc, nil
}
