package google

import "google.golang.org/genai"

// Option configures the agent.
type Option func(*Agent)

// WithAPIKey sets the Gemini API key.
func WithAPIKey(apiKey string) Option {
	return func(a *Agent) { a.apiKey = apiKey }
}

// WithProjectID selects a Google Cloud project, switching the SDK to the
// Vertex AI backend.
func WithProjectID(projectID string) Option {
	return func(a *Agent) { a.projectID = projectID }
}

// WithLocation sets the Vertex AI region.
func WithLocation(location string) Option {
	return func(a *Agent) { a.location = location }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

// WithGenerateContentConfig sets generation parameters for every prompt.
func WithGenerateContentConfig(config *genai.GenerateContentConfig) Option {
	return func(a *Agent) { a.config = config }
}
