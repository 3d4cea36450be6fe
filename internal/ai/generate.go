package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/iadvisors/brand-assistant/internal/logger"
)

// NoAnswerText is stored when the backend returns no textual block at all,
// so a reply row is never persisted empty.
const NoAnswerText = "No se encontró una respuesta."

// ExtractText concatenates the textual blocks of a response and trims the
// result. Image blocks are skipped.
func ExtractText(resp *ConverseResponse) string {
	if resp == nil {
		return ""
	}
	parts := make([]string, 0, len(resp.Content))
	for _, b := range resp.Content {
		if b.Image != nil {
			continue
		}
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Generate runs the model fallback chain: candidates are tried in order with
// the same payload. Access-denied failures move on to the next candidate;
// any other error aborts immediately. It returns the reply text and the
// model id that actually produced it.
func Generate(ctx context.Context, p Provider, candidates []string, req *ConverseRequest) (string, string, error) {
	var lastErr error
	for _, model := range candidates {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		attempt := *req
		attempt.ModelID = model
		resp, err := p.Converse(ctx, &attempt)
		if err != nil {
			if errors.Is(err, ErrModelAccess) {
				logger.Log.Warnf("[generate] model %s unavailable, trying next: %v", model, err)
				lastErr = err
				continue
			}
			return "", "", err
		}
		text := ExtractText(resp)
		if text == "" {
			text = NoAnswerText
		}
		return text, model, nil
	}
	if lastErr == nil {
		lastErr = errors.New("generate: no model candidates")
	}
	return "", "", lastErr
}
