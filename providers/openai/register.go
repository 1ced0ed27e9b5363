package openai

import (
	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/providers"
)

func init() {
	providers.Register(providers.Entry{
		Name:    "openai",
		Matches: providers.PrefixesMatcher("gpt-", "o1", "o3", "o4"),
		New: func(opts providers.Options) (eddy.Agent, error) {
			var options []Option
			if opts.Model != "" {
				options = append(options, WithModel(opts.Model))
			}
			if opts.APIKey != "" {
				options = append(options, WithAPIKey(opts.APIKey))
			}
			if opts.Endpoint != "" {
				options = append(options, WithBaseURL(opts.Endpoint))
			}
			return New(options...), nil
		},
	})
}
