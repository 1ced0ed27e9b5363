package openai

import "github.com/openai/openai-go/option"

// Option configures the agent. Options that affect the underlying SDK
// client contribute request options collected at construction time.
type Option func(*Agent, []option.RequestOption) []option.RequestOption

// WithModel sets the model.
func WithModel(model string) Option {
	return func(a *Agent, opts []option.RequestOption) []option.RequestOption {
		a.model = model
		return opts
	}
}

// WithSystemPrompt sets the system message opening every session.
func WithSystemPrompt(system string) Option {
	return func(a *Agent, opts []option.RequestOption) []option.RequestOption {
		a.system = system
		return opts
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(a *Agent, opts []option.RequestOption) []option.RequestOption {
		return append(opts, option.WithAPIKey(apiKey))
	}
}

// WithBaseURL sets the API base URL, for proxies and compatible servers.
func WithBaseURL(baseURL string) Option {
	return func(a *Agent, opts []option.RequestOption) []option.RequestOption {
		return append(opts, option.WithBaseURL(baseURL))
	}
}

// WithRequestOptions appends arbitrary SDK request options.
func WithRequestOptions(requestOpts ...option.RequestOption) Option {
	return func(a *Agent, opts []option.RequestOption) []option.RequestOption {
		return append(opts, requestOpts...)
	}
}
