package kb

import (
	"context"
	"strings"

	"github.com/iadvisors/brand-assistant/internal/logger"
)

const fragmentSeparator = "\n\n---\n\n"

// Service wraps a Retriever with the degradation policy: grounding is
// best-effort and never blocks a reply.
type Service struct {
	retriever Retriever
	enabled   bool
	topK      int
}

func NewService(retriever Retriever, enabled bool, topK int) *Service {
	if topK <= 0 {
		topK = 4
	}
	return &Service{retriever: retriever, enabled: enabled, topK: topK}
}

// RetrieveContext returns a single grounding block for injection into the
// system instructions, or the empty string when the knowledge base is not
// configured, retrieval is disabled, nothing matches, or the service fails.
func (s *Service) RetrieveContext(ctx context.Context, knowledgeBaseID, query string) string {
	if !s.enabled || knowledgeBaseID == "" || strings.TrimSpace(query) == "" {
		return ""
	}
	fragments, err := s.retriever.Retrieve(ctx, knowledgeBaseID, query, s.topK)
	if err != nil {
		logger.Log.Warnf("[retrieveContext] kb=%s failed, continuing ungrounded: %v", knowledgeBaseID, err)
		return ""
	}
	if len(fragments) == 0 {
		return ""
	}
	return strings.Join(fragments, fragmentSeparator)
}
