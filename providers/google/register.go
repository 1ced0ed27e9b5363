package google

import (
	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/providers"
)

func init() {
	providers.Register(providers.Entry{
		Name:    "google",
		Matches: providers.PrefixesMatcher("gemini-", "models/gemini-"),
		New: func(opts providers.Options) (eddy.Agent, error) {
			var options []Option
			if opts.Model != "" {
				options = append(options, WithModel(opts.Model))
			}
			if opts.APIKey != "" {
				options = append(options, WithAPIKey(opts.APIKey))
			}
			return New(options...), nil
		},
	})
}
