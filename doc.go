// Package eddy provides a workflow execution engine for block-based
// workflows. Workflows are directed graphs of typed blocks: prompts sent to
// an AI agent, shell commands, variable assignments, branches, and nested
// command invocations. The engine walks the graph one block at a time,
// carrying a variable map that blocks read from and write to.
//
// The core types are:
//
//   - [Agent] produces conversational [Session] values backed by a model.
//   - [Stream] iterates over the text chunks of a single model response.
//   - [MockAgent] is a scriptable Agent for tests.
//
// Workflow and command definitions live in the
// [github.com/deepnoodle-ai/eddy/workflow] package, and the engine itself in
// [github.com/deepnoodle-ai/eddy/execution]. Model providers are in the
// [github.com/deepnoodle-ai/eddy/providers] subpackages.
package eddy
