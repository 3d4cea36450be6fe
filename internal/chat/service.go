package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iadvisors/brand-assistant/internal/ai"
	"github.com/iadvisors/brand-assistant/internal/brand"
	"github.com/iadvisors/brand-assistant/internal/common"
	"github.com/iadvisors/brand-assistant/internal/kb"
	"github.com/iadvisors/brand-assistant/internal/logger"
	"gorm.io/gorm"
)

var (
	// ErrThreadNotFound also covers threads owned by another user or brand,
	// so cross-tenant existence is never leaked.
	ErrThreadNotFound = errors.New("thread not found")
	ErrEmptyMessage   = errors.New("message or image attachment required")
)

const (
	assistantPreamble    = "Eres el asistente de IA de la marca %s. Responde en el idioma del usuario con información precisa, útil y alineada a la marca."
	groundingHeader      = "Contexto de la base de conocimiento:"
	imageOnlyPlaceholder = "[Imagen adjunta]"
)

type Service struct {
	repo              *Repo
	brands            *brand.Service
	provider          ai.Provider
	retrieval         *kb.Service
	fallbackModelIDs  []string
	contextWindowSize int

	mu          sync.Mutex
	threadLocks map[string]*threadLock
}

func NewService(repo *Repo, brands *brand.Service, provider ai.Provider, retrieval *kb.Service, fallbackModelIDs []string, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 200 {
		contextWindowSize = 40
	}
	return &Service{
		repo:              repo,
		brands:            brands,
		provider:          provider,
		retrieval:         retrieval,
		fallbackModelIDs:  fallbackModelIDs,
		contextWindowSize: contextWindowSize,
		threadLocks:       make(map[string]*threadLock),
	}
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// lockThread serializes turns on a single thread so concurrent submissions
// append in a deterministic order. The returned func releases the lock.
func (s *Service) lockThread(threadID string) func() {
	s.mu.Lock()
	l := s.threadLocks[threadID]
	if l == nil {
		l = &threadLock{}
		s.threadLocks[threadID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.threadLocks, threadID)
		}
		s.mu.Unlock()
	}
}

// ImageAttachment is the decoded upload of the current turn. Format is the
// short image type ("png", "jpeg", "gif", "webp").
type ImageAttachment struct {
	Filename string
	Format   string
	Bytes    []byte
}

type SendMessageInput struct {
	UserID          uint64
	Brand           *brand.Brand
	ThreadID        string // optional: empty falls back to the latest thread, then a new one
	Message         string
	FormatContext   string
	Profile         *brand.ProfileSelection
	DisplayMetadata map[string]any
	Image           *ImageAttachment
}

type SendMessageResult struct {
	ThreadID          string    `json:"thread_id"`
	Messages          []Message `json:"messages"`
	AssistantMessages []Message `json:"assistant_messages"`
}

func (s *Service) CreateThread(ctx context.Context, userID uint64, b *brand.Brand, title string, externalKey *string) (*Thread, error) {
	if err := s.brands.EnsureMembership(ctx, userID, b.ID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = "Conversación " + time.Now().Format("02/01/2006 15:04")
	}
	tid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	t := &Thread{
		ThreadID:    tid,
		UserID:      userID,
		BrandID:     b.ID,
		Title:       title,
		ExternalKey: externalKey,
	}
	thread, _, err := s.repo.CreateThreadOrGetExisting(ctx, t)
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Service) resolveTargetThread(ctx context.Context, userID uint64, b *brand.Brand, threadID string) (*Thread, error) {
	if threadID != "" {
		t, err := s.repo.GetThreadForUser(ctx, threadID, userID, b.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrThreadNotFound
			}
			return nil, err
		}
		return t, nil
	}
	t, err := s.repo.LatestThreadForUser(ctx, userID, b.ID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.CreateThread(ctx, userID, b, "", nil)
}

// SendMessage runs one full chat turn: validate access, resolve the thread,
// persist the user turn, ground it, call the model with fallback and persist
// the reply. The user turn is durable before inference starts, so a model
// failure leaves a thread that a retry can resume.
func (s *Service) SendMessage(ctx context.Context, in *SendMessageInput) (*SendMessageResult, error) {
	if err := s.brands.EnsureMembership(ctx, in.UserID, in.Brand.ID); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(in.Message)
	if trimmed == "" && in.Image == nil {
		return nil, ErrEmptyMessage
	}

	thread, err := s.resolveTargetThread(ctx, in.UserID, in.Brand, in.ThreadID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockThread(thread.ThreadID)
	defer unlock()

	// The assistant sees exactly what the user turn recorded, so the
	// supplemental sections are merged into the persisted content.
	sections := make([]string, 0, 3)
	if trimmed != "" {
		sections = append(sections, trimmed)
	}
	if fc := strings.TrimSpace(in.FormatContext); fc != "" {
		sections = append(sections, fc)
	}
	if pc := brand.BuildProfileContext(in.Profile); pc != "" {
		sections = append(sections, pc)
	}
	content := strings.Join(sections, "\n\n")
	if content == "" {
		content = imageOnlyPlaceholder
	}

	md := make(map[string]any, len(in.DisplayMetadata)+3)
	for k, v := range in.DisplayMetadata {
		md[k] = v
	}
	if in.Image != nil {
		md[metaImageFilename] = in.Image.Filename
		md[metaImageFormat] = in.Image.Format
		md[metaImageBytes] = base64.StdEncoding.EncodeToString(in.Image.Bytes)
	}
	rawMD, err := encodeMetadata(md)
	if err != nil {
		return nil, err
	}

	userKey, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	userMsgID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	userMsg := &Message{
		MessageID:       userMsgID,
		ThreadID:        thread.ThreadID,
		BrandID:         thread.BrandID,
		Role:            RoleUser,
		Content:         content,
		ExternalKey:     &userKey,
		DisplayMetadata: rawMD,
	}
	if _, _, err := s.repo.InsertMessageOrGetExisting(ctx, userMsg); err != nil {
		return nil, err
	}

	// Grounding queries use the literal user text, not the merged sections.
	saved, err := s.generateReply(ctx, thread, in.Brand, trimmed)
	if err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListMessagesAsc(ctx, thread.ThreadID)
	if err != nil {
		return nil, err
	}
	return &SendMessageResult{
		ThreadID:          thread.ThreadID,
		Messages:          msgs,
		AssistantMessages: []Message{*saved},
	}, nil
}

// generateReply grounds, invokes the model fallback chain and persists the
// assistant turn. Nothing is persisted when generation fails.
func (s *Service) generateReply(ctx context.Context, thread *Thread, b *brand.Brand, groundingQuery string) (*Message, error) {
	grounding := ""
	if s.retrieval != nil {
		grounding = s.retrieval.RetrieveContext(ctx, b.KnowledgeBaseID, groundingQuery)
	}

	history, err := s.buildModelHistory(ctx, thread.ThreadID)
	if err != nil {
		return nil, err
	}

	req := &ai.ConverseRequest{
		System:      buildSystemBlocks(b, grounding),
		Messages:    history,
		Sampling:    samplingFromBrand(b),
		GuardrailID: b.GuardrailID,
	}

	reply, resolvedModel, err := ai.Generate(ctx, s.provider, s.modelCandidates(b.ModelID), req)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	if resolvedModel != b.ModelID {
		// Sticky correction off the request path: next turns start at the
		// model that actually answered.
		go func(brandID, from, to string) {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.brands.NoteWorkingModel(cctx, brandID, from, to)
		}(b.ID, b.ModelID, resolvedModel)
	}

	assistantKey, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	assistantMsgID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	assistantMsg := &Message{
		MessageID:   assistantMsgID,
		ThreadID:    thread.ThreadID,
		BrandID:     thread.BrandID,
		Role:        RoleAssistant,
		Content:     reply,
		ExternalKey: &assistantKey,
	}
	savedMsg, _, err := s.repo.InsertMessageOrGetExisting(ctx, assistantMsg)
	if err != nil {
		return nil, err
	}
	return savedMsg, nil
}

func (s *Service) modelCandidates(primary string) []string {
	candidates := []string{primary}
	for _, m := range s.fallbackModelIDs {
		if m != primary {
			candidates = append(candidates, m)
		}
	}
	return candidates
}

func buildSystemBlocks(b *brand.Brand, grounding string) []ai.SystemBlock {
	blocks := []ai.SystemBlock{{Text: fmt.Sprintf(assistantPreamble, b.Name)}}
	if inst := strings.TrimSpace(b.Instructions); inst != "" {
		blocks = append(blocks, ai.SystemBlock{Text: inst})
	}
	if grounding != "" {
		blocks = append(blocks, ai.SystemBlock{Text: groundingHeader + "\n\n" + grounding})
	}
	return blocks
}

func samplingFromBrand(b *brand.Brand) *ai.SamplingConfig {
	if b.Temperature == nil && b.TopP == nil && b.MaxTokens == nil {
		return nil
	}
	return &ai.SamplingConfig{
		Temperature: b.Temperature,
		TopP:        b.TopP,
		MaxTokens:   b.MaxTokens,
	}
}

// buildModelHistory replays the persisted thread in conversation order,
// capped to the most recent context window. User turns reconstruct their
// embedded image from display metadata; assistant turns are text-only.
func (s *Service) buildModelHistory(ctx context.Context, threadID string) ([]ai.Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, threadID, s.contextWindowSize)
	if err != nil {
		return nil, err
	}
	out := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		blocks := make([]ai.ContentBlock, 0, 2)
		if m.Content != "" {
			blocks = append(blocks, ai.ContentBlock{Text: m.Content})
		}
		if m.Role == RoleUser {
			if img := imageFromMetadata(decodeMetadata(m.DisplayMetadata)); img != nil {
				blocks = append(blocks, ai.ContentBlock{Image: img})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, ai.Message{Role: m.Role, Content: blocks})
	}
	return out, nil
}

// GetThreadMessagesForUser returns the ordered transcript after the
// ownership check.
func (s *Service) GetThreadMessagesForUser(ctx context.Context, userID uint64, brandID, threadID string) ([]Message, error) {
	if _, err := s.repo.GetThreadForUser(ctx, threadID, userID, brandID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return s.repo.ListMessagesAsc(ctx, threadID)
}

// History resolves the explicit thread or falls back to the owner's latest
// one within the brand. No thread is not an error: it returns an empty
// transcript.
func (s *Service) History(ctx context.Context, userID uint64, brandID, threadID string) (string, []Message, error) {
	var (
		thread *Thread
		err    error
	)
	if threadID != "" {
		thread, err = s.repo.GetThreadForUser(ctx, threadID, userID, brandID)
	} else {
		thread, err = s.repo.LatestThreadForUser(ctx, userID, brandID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", []Message{}, nil
		}
		return "", nil, err
	}
	msgs, err := s.repo.ListMessagesAsc(ctx, thread.ThreadID)
	if err != nil {
		return "", nil, err
	}
	return thread.ThreadID, msgs, nil
}

func (s *Service) ListThreads(ctx context.Context, userID uint64, brandID string) ([]Thread, error) {
	return s.repo.ListThreadsForUser(ctx, userID, brandID)
}

func (s *Service) RenameThread(ctx context.Context, userID uint64, brandID, threadID, title string) (*Thread, error) {
	if _, err := s.repo.GetThreadForUser(ctx, threadID, userID, brandID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	if err := s.repo.RenameThread(ctx, threadID, title); err != nil {
		return nil, err
	}
	return s.repo.GetThreadByThreadID(ctx, threadID)
}

// InsertUserTurn persists a user message on an owned thread; used by the
// async job mode where the reply is produced by a worker. A non-nil
// externalKey makes the append idempotent across replayed requests;
// without one each call appends a new turn.
func (s *Service) InsertUserTurn(ctx context.Context, userID uint64, brandID, threadID, content string, externalKey *string) (*Message, error) {
	if _, err := s.repo.GetThreadForUser(ctx, threadID, userID, brandID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	if externalKey == nil || *externalKey == "" {
		key, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		externalKey = &key
	}
	msgID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	msg := &Message{
		MessageID:   msgID,
		ThreadID:    threadID,
		BrandID:     brandID,
		Role:        RoleUser,
		Content:     content,
		ExternalKey: externalKey,
	}
	saved, _, err := s.repo.InsertMessageOrGetExisting(ctx, msg)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// GenerateAssistantReply produces and persists the reply for a thread whose
// user turn is already stored. Used by the worker.
func (s *Service) GenerateAssistantReply(ctx context.Context, userID uint64, threadID string) (string, string, error) {
	thread, err := s.repo.GetThreadByThreadID(ctx, threadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrThreadNotFound
		}
		return "", "", err
	}
	if thread.UserID != userID {
		return "", "", ErrThreadNotFound
	}

	b, err := s.brands.Resolve(ctx, thread.BrandID)
	if err != nil {
		return "", "", err
	}

	unlock := s.lockThread(thread.ThreadID)
	defer unlock()

	// Ground on the newest user turn.
	groundingQuery := ""
	recent, err := s.repo.ListRecentMessagesDesc(ctx, thread.ThreadID, s.contextWindowSize)
	if err != nil {
		return "", "", err
	}
	for _, m := range recent {
		if m.Role == RoleUser {
			groundingQuery = m.Content
			break
		}
	}

	saved, err := s.generateReply(ctx, thread, b, groundingQuery)
	if err != nil {
		logger.Log.Warnf("[generateAssistantReply] thread=%s: %v", thread.ThreadID, err)
		return "", "", err
	}
	return saved.Content, saved.MessageID, nil
}
