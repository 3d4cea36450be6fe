package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Retriever fetches grounding fragments from a knowledge-base service.
type Retriever interface {
	Retrieve(ctx context.Context, knowledgeBaseID, query string, topK int) ([]string, error)
}

type HTTPRetriever struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPRetriever(baseURL, apiKey string) *HTTPRetriever {
	return &HTTPRetriever{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type retrieveWireReq struct {
	RetrievalQuery struct {
		Text string `json:"text"`
	} `json:"retrievalQuery"`
	RetrievalConfiguration struct {
		VectorSearchConfiguration struct {
			NumberOfResults int `json:"numberOfResults"`
		} `json:"vectorSearchConfiguration"`
	} `json:"retrievalConfiguration"`
}

type retrieveWireResp struct {
	RetrievalResults []struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"retrievalResults"`
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, knowledgeBaseID, query string, topK int) ([]string, error) {
	if r.Client == nil {
		return nil, errors.New("retrieve: http client is nil")
	}

	var body retrieveWireReq
	body.RetrievalQuery.Text = query
	body.RetrievalConfiguration.VectorSearchConfiguration.NumberOfResults = topK

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/knowledgebases/%s/retrieve", r.BaseURL, url.PathEscape(knowledgeBaseID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.Client.Do(req)
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
		return nil, fmt.Errorf("retrieve: %s", msg)
	}

	var decoded retrieveWireResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	fragments := make([]string, 0, len(decoded.RetrievalResults))
	for _, res := range decoded.RetrievalResults {
		text := strings.TrimSpace(res.Content.Text)
		if text != "" {
			fragments = append(fragments, text)
		}
	}
	return fragments, nil
}
