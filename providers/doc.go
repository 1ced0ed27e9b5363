// Package providers maintains a registry of model providers that can
// answer workflow prompt blocks. Each provider subpackage registers
// itself on import and builds an [github.com/deepnoodle-ai/eddy.Agent]
// from an [Options] value.
package providers
