package handlers

import (
	"context"
	"log"

	"github.com/iadvisors/brand-assistant/internal/ai"
	"github.com/iadvisors/brand-assistant/internal/brand"
	"github.com/iadvisors/brand-assistant/internal/chat"
	"github.com/iadvisors/brand-assistant/internal/config"
	"github.com/iadvisors/brand-assistant/internal/kb"
	"github.com/iadvisors/brand-assistant/internal/store/rabbitmq"
	"gorm.io/gorm"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	Brands  *brand.Service
	ChatSvc *chat.Service
	Rabbit  *rabbitmq.Publisher
}

// NewHandler wires the request-facing services. rabbit may be nil; the
// async endpoints then report the queue as unavailable.
func NewHandler(db *gorm.DB, cfg config.Config, cache brand.Cache, rabbit *rabbitmq.Publisher) *Handler {
	reg := ai.NewRegistry()
	reg.Register("converse", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewConverseProvider(cfg.InferenceBaseURL, cfg.InferenceAPIKey), nil
	})
	provider, err := reg.Get(context.Background(), cfg.AIProvider)
	if err != nil {
		log.Fatalf("unsupported AI_PROVIDER=%q", cfg.AIProvider)
	}

	brandSvc := brand.NewService(brand.NewRepo(db), cache, cfg.DefaultModelID)
	retrieval := kb.NewService(
		kb.NewHTTPRetriever(cfg.RetrievalBaseURL, cfg.RetrievalAPIKey),
		cfg.RetrievalEnabled,
		cfg.RetrievalTopK,
	)
	chatSvc := chat.NewService(
		chat.NewRepo(db),
		brandSvc,
		provider,
		retrieval,
		cfg.FallbackModelIDs,
		cfg.ChatContextWindowSize,
	)

	return &Handler{
		DB:      db,
		Cfg:     cfg,
		Brands:  brandSvc,
		ChatSvc: chatSvc,
		Rabbit:  rabbit,
	}
}
