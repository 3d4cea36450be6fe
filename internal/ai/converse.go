package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ConverseProvider talks to a converse-compatible inference gateway over
// plain JSON. The wire shapes follow the converse API: system blocks,
// role+content messages where a content block is either text or an image.
type ConverseProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type wireImageSource struct {
	Bytes string `json:"bytes"`
}

type wireImage struct {
	Format string          `json:"format"`
	Source wireImageSource `json:"source"`
}

type wireContentBlock struct {
	Text  string     `json:"text,omitempty"`
	Image *wireImage `json:"image,omitempty"`
}

type wireMessage struct {
	Role    string             `json:"role"`
	Content []wireContentBlock `json:"content"`
}

type wireSystemBlock struct {
	Text string `json:"text"`
}

type wireInferenceConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

type wireGuardrailConfig struct {
	GuardrailIdentifier string `json:"guardrailIdentifier"`
	GuardrailVersion    string `json:"guardrailVersion"`
}

type converseWireReq struct {
	System          []wireSystemBlock    `json:"system,omitempty"`
	Messages        []wireMessage        `json:"messages"`
	InferenceConfig *wireInferenceConfig `json:"inferenceConfig,omitempty"`
	GuardrailConfig *wireGuardrailConfig `json:"guardrailConfig,omitempty"`
}

type converseWireResp struct {
	Output struct {
		Message struct {
			Role    string             `json:"role"`
			Content []wireContentBlock `json:"content"`
		} `json:"message"`
	} `json:"output"`
	Message string `json:"message,omitempty"`
}

func NewConverseProvider(baseURL, apiKey string) *ConverseProvider {
	return &ConverseProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func encodeMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: m.Role, Content: make([]wireContentBlock, 0, len(m.Content))}
		for _, b := range m.Content {
			if b.Image != nil {
				wm.Content = append(wm.Content, wireContentBlock{
					Image: &wireImage{
						Format: b.Image.Format,
						Source: wireImageSource{Bytes: base64.StdEncoding.EncodeToString(b.Image.Bytes)},
					},
				})
				continue
			}
			wm.Content = append(wm.Content, wireContentBlock{Text: b.Text})
		}
		out = append(out, wm)
	}
	return out
}

// isAccessDeniedBody recognises subscription-type failures that some
// backends report with a 400 instead of a 403.
func isAccessDeniedBody(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "accessdenied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "on-demand throughput")
}

func (p *ConverseProvider) Converse(ctx context.Context, req *ConverseRequest) (*ConverseResponse, error) {
	if p.Client == nil {
		return nil, errors.New("converse: http client is nil")
	}
	model := strings.TrimSpace(req.ModelID)
	if model == "" {
		return nil, errors.New("converse: model is required")
	}

	body := converseWireReq{Messages: encodeMessages(req.Messages)}
	for _, s := range req.System {
		body.System = append(body.System, wireSystemBlock{Text: s.Text})
	}
	if req.Sampling != nil {
		body.InferenceConfig = &wireInferenceConfig{
			Temperature: req.Sampling.Temperature,
			TopP:        req.Sampling.TopP,
			MaxTokens:   req.Sampling.MaxTokens,
		}
	}
	if req.GuardrailID != "" {
		body.GuardrailConfig = &wireGuardrailConfig{
			GuardrailIdentifier: req.GuardrailID,
			GuardrailVersion:    "DRAFT",
		}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/model/%s/converse", p.BaseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
			return nil, fmt.Errorf("converse: %s: %w", msg, ErrModelAccess)
		}
		if isAccessDeniedBody(msg) {
			return nil, fmt.Errorf("converse: %s: %w", msg, ErrModelAccess)
		}
		return nil, fmt.Errorf("converse: %s", msg)
	}

	var decoded converseWireResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	out := make([]ContentBlock, 0, len(decoded.Output.Message.Content))
	for _, b := range decoded.Output.Message.Content {
		if b.Image != nil {
			raw, err := base64.StdEncoding.DecodeString(b.Image.Source.Bytes)
			if err != nil {
				return nil, fmt.Errorf("converse: bad image block: %w", err)
			}
			out = append(out, ContentBlock{Image: &ImageBlock{Format: b.Image.Format, Bytes: raw}})
			continue
		}
		out = append(out, ContentBlock{Text: b.Text})
	}
	return &ConverseResponse{Content: out}, nil
}
