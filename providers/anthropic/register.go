package anthropic

import (
	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/providers"
)

func init() {
	providers.Register(providers.Entry{
		Name:    "anthropic",
		Matches: providers.PrefixesMatcher("claude-"),
		New: func(opts providers.Options) (eddy.Agent, error) {
			var options []Option
			if opts.Model != "" {
				options = append(options, WithModel(opts.Model))
			}
			if opts.APIKey != "" {
				options = append(options, WithAPIKey(opts.APIKey))
			}
			if opts.Endpoint != "" {
				options = append(options, WithEndpoint(opts.Endpoint))
			}
			return New(options...), nil
		},
	})
}
