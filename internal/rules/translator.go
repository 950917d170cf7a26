package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

// ErrTranslation means free text could not be turned into a rule. The rule
// is not stored and the admin should rephrase.
var ErrTranslation = errors.New("rule translation failed")

// Translator turns an admin's natural-language rule into a Rule.
type Translator interface {
	Translate(ctx context.Context, text string) (Rule, error)
}

// Completer is a text-completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const promptTemplate = `You are a strict parser. Convert the admin's natural-language scheduling rule into a JSON object
with exactly two keys: "condition" and "action".

- condition: an object with field(s) to match (examples: patient_type: "new"/"returning", insurance_company: "BlueCross", dob: "YYYY-MM-DD", last_name: "Smith").
- action: an object with the intended scheduling action, possible keys:
    - assign_doctor: "<Doctor Name>"
    - duration: <minutes> (integer)
    - block_doctor: "<Doctor Name>"
    - prefer_doctor: "<Doctor Name>"
    - any other simple key/value pairs as needed

Return valid JSON ONLY (no explanation). If a value is numeric, return a number. If uncertain, make best effort.

Example:
Input: "New patients should always be booked for 60 minutes."
Output JSON:
{"condition": {"patient_type": "new"}, "action": {"duration": 60}}

Now convert this rule:
%s
JSON:
`

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// LLMTranslator asks a Completer for the structured rule, retrying with a
// linear backoff.
type LLMTranslator struct {
	client     Completer
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

func NewLLMTranslator(client Completer, maxRetries int, backoff time.Duration, log *zap.Logger) *LLMTranslator {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &LLMTranslator{
		client:     client,
		maxRetries: maxRetries,
		backoff:    backoff,
		log:        logging.OrNop(log),
	}
}

func (t *LLMTranslator) Translate(ctx context.Context, text string) (Rule, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Rule{}, fmt.Errorf("%w: empty rule text", ErrTranslation)
	}
	if t.client == nil {
		return Rule{}, fmt.Errorf("%w: translator backend not configured", ErrTranslation)
	}

	prompt := fmt.Sprintf(promptTemplate, text)

	var lastErr error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Rule{}, fmt.Errorf("%w: %v", ErrTranslation, ctx.Err())
			case <-time.After(t.backoff * time.Duration(attempt)):
			}
		}

		out, err := t.client.Complete(ctx, prompt)
		if err == nil {
			var r Rule
			r, err = ParseRule(out)
			if err == nil {
				r.RawText = text
				return r, nil
			}
		}

		lastErr = err
		t.log.Warn("rule translation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return Rule{}, fmt.Errorf("%w after %d attempts: %v", ErrTranslation, t.maxRetries, lastErr)
}

// ParseRule extracts the outermost JSON object from model output and
// decodes it as a rule.
func ParseRule(output string) (Rule, error) {
	body := jsonObjectRe.FindString(output)
	if body == "" {
		return Rule{}, errors.New("no JSON object in output")
	}

	var parts map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &parts); err != nil {
		return Rule{}, fmt.Errorf("decode rule: %w", err)
	}

	actionRaw, ok := parts["action"]
	if !ok {
		return Rule{}, errors.New(`rule is missing "action"`)
	}

	var r Rule
	if condRaw, ok := parts["condition"]; ok && string(condRaw) != "null" {
		if err := json.Unmarshal(condRaw, &r.Condition); err != nil {
			return Rule{}, fmt.Errorf("decode condition: %w", err)
		}
	}
	if err := json.Unmarshal(actionRaw, &r.Action); err != nil {
		return Rule{}, fmt.Errorf("decode action: %w", err)
	}

	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}
