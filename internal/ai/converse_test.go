package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConverse_RequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody converseWireReq

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"message": map[string]any{
					"role":    "assistant",
					"content": []map[string]any{{"text": "hola"}},
				},
			},
		})
	}))
	defer srv.Close()

	p := NewConverseProvider(srv.URL, "secret")
	temp := 0.4
	maxTokens := 512
	resp, err := p.Converse(context.Background(), &ConverseRequest{
		ModelID: "anthropic.claude-3-5-haiku-20241022-v1:0",
		System:  []SystemBlock{{Text: "instrucciones"}},
		Messages: []Message{{
			Role: "user",
			Content: []ContentBlock{
				{Text: "hola"},
				{Image: &ImageBlock{Format: "png", Bytes: []byte{1, 2}}},
			},
		}},
		Sampling:    &SamplingConfig{Temperature: &temp, MaxTokens: &maxTokens},
		GuardrailID: "gr-1",
	})
	if err != nil {
		t.Fatalf("converse: %v", err)
	}

	if gotPath != "/model/anthropic.claude-3-5-haiku-20241022-v1:0/converse" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if len(gotBody.System) != 1 || gotBody.System[0].Text != "instrucciones" {
		t.Fatalf("unexpected system blocks: %+v", gotBody.System)
	}
	if len(gotBody.Messages) != 1 || len(gotBody.Messages[0].Content) != 2 {
		t.Fatalf("unexpected messages: %+v", gotBody.Messages)
	}
	if img := gotBody.Messages[0].Content[1].Image; img == nil || img.Format != "png" || img.Source.Bytes == "" {
		t.Fatalf("image block not encoded: %+v", gotBody.Messages[0].Content[1])
	}
	if gotBody.InferenceConfig == nil || *gotBody.InferenceConfig.Temperature != 0.4 || *gotBody.InferenceConfig.MaxTokens != 512 {
		t.Fatalf("unexpected inference config: %+v", gotBody.InferenceConfig)
	}
	if gotBody.GuardrailConfig == nil || gotBody.GuardrailConfig.GuardrailIdentifier != "gr-1" || gotBody.GuardrailConfig.GuardrailVersion != "DRAFT" {
		t.Fatalf("unexpected guardrail config: %+v", gotBody.GuardrailConfig)
	}

	if len(resp.Content) != 1 || resp.Content[0].Text != "hola" {
		t.Fatalf("unexpected response: %+v", resp.Content)
	}
}

func TestConverse_ForbiddenIsModelAccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewConverseProvider(srv.URL, "")
	_, err := p.Converse(context.Background(), &ConverseRequest{
		ModelID:  "m1",
		Messages: []Message{{Role: "user", Content: []ContentBlock{{Text: "hola"}}}},
	})
	if !errors.Is(err, ErrModelAccess) {
		t.Fatalf("expected ErrModelAccess, got %v", err)
	}
}

func TestConverse_AccessDeniedBodyOn400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"AccessDeniedException: model requires on-demand throughput"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewConverseProvider(srv.URL, "")
	_, err := p.Converse(context.Background(), &ConverseRequest{
		ModelID:  "m1",
		Messages: []Message{{Role: "user", Content: []ContentBlock{{Text: "hola"}}}},
	})
	if !errors.Is(err, ErrModelAccess) {
		t.Fatalf("expected ErrModelAccess, got %v", err)
	}
}

func TestConverse_PlainErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "validation error", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewConverseProvider(srv.URL, "")
	_, err := p.Converse(context.Background(), &ConverseRequest{
		ModelID:  "m1",
		Messages: []Message{{Role: "user", Content: []ContentBlock{{Text: "hola"}}}},
	})
	if err == nil || errors.Is(err, ErrModelAccess) {
		t.Fatalf("expected a fatal error, got %v", err)
	}
}

func TestConverse_MissingModel(t *testing.T) {
	p := NewConverseProvider("http://example.invalid", "")
	if _, err := p.Converse(context.Background(), &ConverseRequest{}); err == nil {
		t.Fatalf("expected an error for missing model")
	}
}
