package ai

import (
	"context"
	"errors"
)

// ErrModelAccess marks access-denied / subscription-class failures from the
// inference backend. The fallback chain skips to the next candidate on it;
// every other error is fatal.
var ErrModelAccess = errors.New("model access denied")

// ImageBlock carries raw image bytes; Format is the short image type
// ("png", "jpeg", "gif", "webp").
type ImageBlock struct {
	Format string
	Bytes  []byte
}

// ContentBlock is a tagged union: exactly one of Text or Image is set.
type ContentBlock struct {
	Text  string
	Image *ImageBlock
}

type Message struct {
	Role    string
	Content []ContentBlock
}

type SystemBlock struct {
	Text string
}

// SamplingConfig mirrors the per-brand inference settings; nil fields are
// omitted from the request.
type SamplingConfig struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type ConverseRequest struct {
	ModelID     string
	System      []SystemBlock
	Messages    []Message
	Sampling    *SamplingConfig
	GuardrailID string
}

type ConverseResponse struct {
	Content []ContentBlock
}

type Provider interface {
	Converse(ctx context.Context, req *ConverseRequest) (*ConverseResponse, error)
}
