package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// systemPrompt constrains the local model to classify only explicit,
// first-person, present-tense consent, per spec.md §4.5.
const systemPrompt = `You classify a single transcribed utterance for explicit consent to be recorded on camera.

Respond with consent ONLY for first-person, present-tense, unconditional statements such as
"I consent to be recorded" or "you can record me, my name is Alice".

Respond with no consent for:
- third-person statements ("she said it's fine to record her")
- conditional statements ("you can record me if you ask my manager first")
- historical statements ("I consented yesterday")
- negated statements ("I do not consent to be recorded")
- anything ambiguous or unrelated to recording consent

Reply with ONLY a JSON object of the exact shape {"consented": bool, "name": string}.
"name" is the speaker's first name if stated, or an empty string if not stated or consent is false.
No other text.`

// Classifier runs the local consent-classification model over an ASR
// transcript, grounded on lookatitude-beluga-ai's ollama chat-request
// pattern (pkg/llms/ollama/ollama.go).
type Classifier struct {
	client *api.Client
	model  string
}

// NewClassifier builds a Classifier against an Ollama server at host.
func NewClassifier(host, model string) (*Classifier, error) {
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("speech: parse ollama host %q: %w", host, err)
	}
	return &Classifier{client: api.NewClient(parsed, nil), model: model}, nil
}

type classifierReply struct {
	Consented bool   `json:"consented"`
	Name      string `json:"name"`
}

// Classify asks the local model whether transcript contains explicit
// consent and, if so, a name. A reply that is not the expected JSON
// yields a negative verdict rather than an error, per spec.md §7's
// fail-safe policy; a failed chat request is returned as an error.
func (c *Classifier) Classify(ctx context.Context, transcript models.Transcript) (models.ConsentVerdict, error) {
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: transcript.Text},
		},
		Stream: boolPtr(false),
	}

	var reply api.ChatResponse
	respFunc := func(resp api.ChatResponse) error {
		reply = resp
		return nil
	}

	if err := c.client.Chat(ctx, req, respFunc); err != nil {
		return models.ConsentVerdict{}, fmt.Errorf("speech: ollama chat: %w", err)
	}

	var parsed classifierReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply.Message.Content)), &parsed); err != nil {
		return models.ConsentVerdict{Consented: false}, nil
	}

	if !parsed.Consented {
		return models.ConsentVerdict{Consented: false}, nil
	}

	return models.ConsentVerdict{Consented: true, Name: normalizeName(parsed.Name)}, nil
}

func boolPtr(b bool) *bool { return &b }

var nonFilenameChar = regexp.MustCompile(`[^a-z0-9_]`)

// normalizeName reduces a model-extracted name to the filename-safe
// token spec.md §4.5 requires: lowercase letters, digits, underscore;
// spaces become underscores; anything unrecognized becomes "unknown".
func normalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	s = nonFilenameChar.ReplaceAllString(s, "")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}
