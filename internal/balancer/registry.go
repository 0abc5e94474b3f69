package balancer

import (
	log "github.com/sirupsen/logrus"
)

// Registry maps provider identifiers (domain-like strings, exact case) to
// their probing strategy. It is built once at startup and read-only after
// that, so concurrent lookups need no locking.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry wires every supported provider against the given dispatcher.
func NewRegistry(d *Dispatcher) *Registry {
	return &Registry{strategies: map[string]Strategy{
		"aimlapi.com": NewBasicStrategy(d, "aimlapi.com", "https://api.aimlapi.com/v1/chat/completions",
			BasicConfig{ValidCode: 400, Method: "POST"}),
		"capmonster.cloud": NewCaptchaStrategy(d, "capmonster.cloud", "https://api.capmonster.cloud/getBalance"),
		"cartesia.ai":      NewCartesiaStrategy(d),
		"cohere.com":       NewBasicStrategy(d, "cohere.com", "https://api.cohere.com/v1/models", BasicConfig{}),
		"cors.sh": NewBasicStrategy(d, "cors.sh", "https://proxy.cors.sh/https://ip.villainsrule.xyz",
			BasicConfig{TokenHeader: "x-cors-api-key", ValidCode: 400, SuccessLabel: "Paid Key"}),
		"deepgram.com":  NewDeepgramStrategy(d),
		"deepseek.com":  NewDeepseekStrategy(d),
		"elevenlabs.io": NewElevenLabsStrategy(d),
		"gemini.google": NewGeminiStrategy(d),
		"groq.com": NewBasicStrategy(d, "groq.com", "https://api.groq.com/openai/v1/models",
			BasicConfig{InvalidCodes: []int{401, 400}}),
		"https.proxy": NewHTTPSProxyStrategy(),
		"ipinfo.io":   NewIPInfoStrategy(d),
		"mistral.ai": NewBasicStrategy(d, "mistral.ai", "https://api.mistral.ai/v1/models",
			BasicConfig{SuccessLabel: "Has Credits"}),
		"perplexity.ai": NewBasicStrategy(d, "perplexity.ai", "https://api.perplexity.ai/async/chat/completions", BasicConfig{}),
		"together.ai": NewBasicStrategy(d, "together.ai", "https://api.together.xyz/v1/models",
			BasicConfig{SuccessLabel: "Has Credits"}),
		"veo.google":   NewGeminiVideoStrategy(d),
		"vpnapi.io":    NewVPNAPIStrategy(d),
		"2captcha.com": NewCaptchaStrategy(d, "2captcha.com", "https://api.2captcha.com/getBalance"),
	}}
}

// Resolve returns the strategy for the provider, or nil when the provider has
// no automated classifier. A miss is a normal outcome, not an error: keys for
// such providers are stored with the "?" sentinel without any probe.
func (r *Registry) Resolve(providerID string) Strategy {
	s, ok := r.strategies[providerID]
	if !ok {
		log.WithField("provider", providerID).Debug("no balancer strategy for provider")
		return nil
	}
	return s
}

// Supports reports whether a strategy exists without logging.
func (r *Registry) Supports(providerID string) bool {
	_, ok := r.strategies[providerID]
	return ok
}

// Providers returns the supported provider ids (unordered).
func (r *Registry) Providers() []string {
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	return ids
}
