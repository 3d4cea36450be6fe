package brand

import (
	"context"
	"errors"

	"github.com/iadvisors/brand-assistant/internal/logger"
	"gorm.io/gorm"
)

var (
	ErrBrandNotFound = errors.New("brand not found")
	// ErrBrandAccessDenied is reported as not-found at the HTTP edge so a
	// caller cannot probe which brands exist.
	ErrBrandAccessDenied = errors.New("brand access denied")
)

// Cache is a read-through cache for brand records. A (nil, nil) return is a
// miss. Errors are treated as misses by the service.
type Cache interface {
	GetBrand(ctx context.Context, brandID string) (*Brand, error)
	SetBrand(ctx context.Context, b *Brand) error
	DeleteBrand(ctx context.Context, brandID string) error
}

type Service struct {
	repo           *Repo
	cache          Cache
	defaultModelID string
}

func NewService(repo *Repo, cache Cache, defaultModelID string) *Service {
	return &Service{repo: repo, cache: cache, defaultModelID: defaultModelID}
}

func (s *Service) normalize(b *Brand) *Brand {
	b.ModelID = NormalizeModelID(b.ModelID, s.defaultModelID)
	b.KnowledgeBaseID = NormalizeKnowledgeBaseID(b.KnowledgeBaseID)
	return b
}

// Resolve loads a brand by id, cache first. The returned record is already
// normalized: ModelID is never empty, legacy identifiers are gone.
func (s *Service) Resolve(ctx context.Context, brandID string) (*Brand, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetBrand(ctx, brandID); err == nil && cached != nil {
			return s.normalize(cached), nil
		}
	}
	b, err := s.repo.GetByID(ctx, brandID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBrandNotFound
		}
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetBrand(ctx, b); err != nil {
			logger.Log.Debugf("[brand] cache set %s: %v", brandID, err)
		}
	}
	return s.normalize(b), nil
}

// EnsureMembership fails closed: any lookup problem denies access.
func (s *Service) EnsureMembership(ctx context.Context, userID uint64, brandID string) error {
	ok, err := s.repo.HasMembership(ctx, userID, brandID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBrandAccessDenied
	}
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID uint64) ([]Brand, error) {
	brands, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range brands {
		s.normalize(&brands[i])
	}
	return brands, nil
}

// NoteWorkingModel records that `to` answered while the configured `from`
// did not. Best-effort: the caller runs it off the request path and a lost
// write only costs one extra fallback round next turn.
func (s *Service) NoteWorkingModel(ctx context.Context, brandID, from, to string) {
	if from == to || to == "" {
		return
	}
	updated, err := s.repo.UpdateModelIDIfCurrent(ctx, brandID, from, to)
	if err != nil {
		logger.Log.Warnf("[brand] sticky model update %s %s->%s: %v", brandID, from, to, err)
		return
	}
	if updated && s.cache != nil {
		if err := s.cache.DeleteBrand(ctx, brandID); err != nil {
			logger.Log.Debugf("[brand] cache invalidate %s: %v", brandID, err)
		}
	}
}
