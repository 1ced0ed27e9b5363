package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/schema"
	"github.com/deepnoodle-ai/eddy/template"
	"github.com/deepnoodle-ai/eddy/workflow"
)

// maxSchemaAttempts is how many times a structured response is parsed
// before the prompt block fails: the initial response plus corrective
// retries.
const maxSchemaAttempts = 5

const schemaRetryPrompt = "Your previous response could not be parsed. " +
	"Please provide your answer in the exact JSON schema format required:\n\n%s\n\n" +
	"Ensure your response contains ONLY valid JSON matching this schema."

// schemaInstructions appends the output contract to a prompt.
func schemaInstructions(s *schema.Schema) string {
	return "\n\nProvide your final answer in this output JSON schema:\n" + s.JSON()
}

// sessionHolder lazily creates and caches the agent session shared across
// the prompt blocks of a run, including nested command invocations, so the
// whole run is one conversation.
type sessionHolder struct {
	mutex   sync.Mutex
	session eddy.Session
}

// ensure returns the current session, starting one on first use.
func (h *sessionHolder) ensure(ctx context.Context, agent eddy.Agent) (eddy.Session, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.session != nil {
		return h.session, nil
	}
	session, err := agent.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start agent session: %w", err)
	}
	h.session = session
	return session, nil
}

// reset closes and drops the session so the next prompt starts fresh.
func (h *sessionHolder) reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.session != nil {
		h.session.Close()
		h.session = nil
	}
}

func (e *Execution) executePrompt(ctx context.Context, block *workflow.Block) *BlockResult {
	if block.Prompt == "" {
		return errorResult(fmt.Errorf("Prompt block has no prompt text"), 0)
	}
	if e.agent == nil {
		return errorResult(fmt.Errorf("Prompt blocks require an agent"), 0)
	}
	start := time.Now()

	variables := e.state.effectiveVariables()
	substituted, err := template.SubstituteAll(block.Prompt, variables, variables)
	if err != nil {
		return errorResult(fmt.Errorf("Variable substitution error: %s", err), time.Since(start))
	}

	finalPrompt := substituted
	if block.OutputSchema != nil {
		finalPrompt += schemaInstructions(block.OutputSchema)
	}

	session, err := e.session.ensure(ctx, e.agent)
	if err != nil {
		return errorResult(err, time.Since(start))
	}

	response, err := e.streamPrompt(ctx, session, finalPrompt)
	if err != nil {
		return errorResult(err, time.Since(start))
	}
	e.logger.Debug("prompt response received", "chars", len(response))

	var structured map[string]any
	if block.OutputSchema != nil {
		structured, response, err = e.parseWithRetries(ctx, session, block.OutputSchema, response)
		if err != nil {
			return errorResult(err, time.Since(start))
		}
	}
	return successResult(structured, response, time.Since(start))
}

// streamPrompt sends one prompt and accumulates the response, forwarding
// each chunk to the observer as it arrives. The observer sees an empty
// chunk first, marking the start of the exchange.
func (e *Execution) streamPrompt(ctx context.Context, session eddy.Session, prompt string) (string, error) {
	e.observer.firePromptStream(prompt, "")
	stream, err := session.Stream(ctx, prompt)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var response strings.Builder
	for stream.Next(ctx) {
		chunk := stream.Chunk()
		if chunk == "" {
			continue
		}
		response.WriteString(chunk)
		e.observer.firePromptStream(prompt, chunk)
	}
	if err := stream.Err(); err != nil {
		return response.String(), err
	}
	return response.String(), nil
}

// parseWithRetries validates a structured response, asking the agent to
// correct itself on failure. It returns the parsed output and the raw text
// of the response that finally parsed.
func (e *Execution) parseWithRetries(ctx context.Context, session eddy.Session, s *schema.Schema, response string) (map[string]any, string, error) {
	schemaJSON := s.JSON()
	for attempt := 1; ; attempt++ {
		structured, err := parseStructuredOutput(response, s)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("structured output parsed", "attempt", attempt)
			}
			return structured, response, nil
		}
		e.logger.Warn("structured output parsing failed",
			"attempt", attempt,
			"max_attempts", maxSchemaAttempts,
			"error", err)
		if attempt >= maxSchemaAttempts {
			return nil, response, &SchemaValidationError{Attempts: maxSchemaAttempts, LastErr: err}
		}
		response, err = e.streamPrompt(ctx, session, fmt.Sprintf(schemaRetryPrompt, schemaJSON))
		if err != nil {
			return nil, response, err
		}
	}
}

// parseStructuredOutput extracts a JSON object from raw model output and
// validates it against the schema.
func parseStructuredOutput(text string, s *schema.Schema) (map[string]any, error) {
	raw, ok := schema.ExtractJSON(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if err := s.Validate(output); err != nil {
		return nil, err
	}
	return output, nil
}
