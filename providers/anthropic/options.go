package anthropic

import "net/http"

// Option configures the agent.
type Option func(*Agent)

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(a *Agent) { a.apiKey = apiKey }
}

// WithClient sets the HTTP client used for API calls.
func WithClient(client *http.Client) Option {
	return func(a *Agent) { a.client = client }
}

// WithEndpoint sets the Messages API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(a *Agent) { a.endpoint = endpoint }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

// WithVersion sets the anthropic-version header.
func WithVersion(version string) Option {
	return func(a *Agent) { a.version = version }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(maxTokens int) Option {
	return func(a *Agent) { a.maxTokens = maxTokens }
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(system string) Option {
	return func(a *Agent) { a.system = system }
}

// WithMaxRetries sets the retry budget for failed API calls.
func WithMaxRetries(n int) Option {
	return func(a *Agent) { a.maxRetries = n }
}
