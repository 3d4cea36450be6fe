package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/iadvisors/brand-assistant/internal/brand"
	"github.com/iadvisors/brand-assistant/internal/chat"
	"github.com/iadvisors/brand-assistant/internal/common"
	"github.com/iadvisors/brand-assistant/internal/httpapi/middleware"
	"github.com/iadvisors/brand-assistant/internal/logger"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func brandFromContext(c *gin.Context) (*brand.Brand, bool) {
	b, ok := middleware.BrandFromContext(c)
	if !ok {
		fail(c, http.StatusInternalServerError, 50010, "brand not resolved")
		return nil, false
	}
	return b, true
}

func parseUserID(raw string) (uint64, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// idempotencyKey reads the Idempotency-Key header. Oversized keys are
// rejected rather than truncated so a retry can never land on a
// different key. The limit leaves room for the derived per-record
// suffixes within the 128-char key columns.
func idempotencyKey(c *gin.Context) (*string, bool) {
	raw := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if raw == "" {
		return nil, true
	}
	if len(raw) > 120 {
		return nil, false
	}
	return &raw, true
}

const maxImageBytes = 6 << 20

var imageFormats = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}

	uid, okk := parseUserID(c.PostForm("userId"))
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}

	in := &chat.SendMessageInput{
		UserID:        uid,
		Brand:         b,
		ThreadID:      strings.TrimSpace(c.PostForm("threadId")),
		Message:       c.PostForm("message"),
		FormatContext: c.PostForm("formatContext"),
	}

	if raw := c.PostForm("displayMetadata"); raw != "" {
		md := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			fail(c, http.StatusBadRequest, 10001, "invalid displayMetadata json")
			return
		}
		in.DisplayMetadata = md
	}

	if raw := c.PostForm("communicationProfile"); raw != "" {
		var sel brand.ProfileSelection
		if err := json.Unmarshal([]byte(raw), &sel); err != nil {
			fail(c, http.StatusBadRequest, 10001, "invalid communicationProfile json")
			return
		}
		in.Profile = &sel
	}

	fh, err := c.FormFile("image")
	if err == nil && fh != nil {
		if fh.Size > maxImageBytes {
			fail(c, http.StatusBadRequest, 10003, "image exceeds 6MB limit")
			return
		}
		format, okf := imageFormats[strings.ToLower(fh.Header.Get("Content-Type"))]
		if !okf {
			fail(c, http.StatusBadRequest, 10004, "unsupported image type")
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusInternalServerError, 50001, "failed to read image")
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
		f.Close()
		if err != nil || len(data) > maxImageBytes {
			fail(c, http.StatusBadRequest, 10003, "image exceeds 6MB limit")
			return
		}
		in.Image = &chat.ImageAttachment{
			Filename: fh.Filename,
			Format:   format,
			Bytes:    data,
		}
	}

	res, err := h.ChatSvc.SendMessage(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, 40002, "message is required")
		case errors.Is(err, chat.ErrThreadNotFound), errors.Is(err, brand.ErrBrandAccessDenied):
			fail(c, http.StatusNotFound, 40402, "thread not found")
		default:
			logger.Log.Errorf("[sendChatMessage] user=%d brand=%s: %v", uid, b.ID, err)
			fail(c, http.StatusInternalServerError, 50001, "failed to process message")
		}
		return
	}

	ok(c, res)
}

type createThreadReq struct {
	UserID string `json:"userId" binding:"required"`
	Title  string `json:"title"`
}

func (h *Handler) CreateChatThread(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}

	var req createThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	uid, okk := parseUserID(req.UserID)
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}
	key, okk := idempotencyKey(c)
	if !okk {
		fail(c, http.StatusBadRequest, 10005, "idempotency key too long")
		return
	}

	t, err := h.ChatSvc.CreateThread(c.Request.Context(), uid, b, req.Title, key)
	if err != nil {
		if errors.Is(err, brand.ErrBrandAccessDenied) {
			fail(c, http.StatusNotFound, 40410, "brand not found")
			return
		}
		logger.Log.Errorf("[createChatThread] user=%d brand=%s: %v", uid, b.ID, err)
		fail(c, http.StatusInternalServerError, 50001, "failed to create thread")
		return
	}

	ok(c, gin.H{
		"thread_id": t.ThreadID,
		"title":     t.Title,
	})
}

func (h *Handler) ListThreadMessages(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}
	uid, okk := parseUserID(c.Query("userId"))
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}
	threadID := c.Param("thread_id")

	msgs, err := h.ChatSvc.GetThreadMessagesForUser(c.Request.Context(), uid, b.ID, threadID)
	if err != nil {
		if errors.Is(err, chat.ErrThreadNotFound) {
			fail(c, http.StatusNotFound, 40402, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	ok(c, gin.H{
		"thread_id": threadID,
		"messages":  msgs,
	})
}

func (h *Handler) GetChatHistory(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}
	uid, okk := parseUserID(c.Param("user_id"))
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}
	threadID := strings.TrimSpace(c.Query("threadId"))

	resolved, msgs, err := h.ChatSvc.History(c.Request.Context(), uid, b.ID, threadID)
	if err != nil {
		if errors.Is(err, chat.ErrThreadNotFound) {
			fail(c, http.StatusNotFound, 40402, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50002, "failed to load history")
		return
	}

	ok(c, gin.H{
		"thread_id": resolved,
		"messages":  msgs,
	})
}

func (h *Handler) ListChatThreads(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}
	uid, okk := parseUserID(c.Param("user_id"))
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}

	threads, err := h.ChatSvc.ListThreads(c.Request.Context(), uid, b.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50002, "failed to list threads")
		return
	}

	ok(c, gin.H{"threads": threads})
}

type renameThreadReq struct {
	UserID string `json:"userId" binding:"required"`
	Title  string `json:"title" binding:"required"`
}

func (h *Handler) RenameChatThread(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}

	var req renameThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	uid, okk := parseUserID(req.UserID)
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}

	t, err := h.ChatSvc.RenameThread(c.Request.Context(), uid, b.ID, c.Param("thread_id"), req.Title)
	if err != nil {
		if errors.Is(err, chat.ErrThreadNotFound) {
			fail(c, http.StatusNotFound, 40402, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "failed to rename thread")
		return
	}

	ok(c, gin.H{
		"thread_id": t.ThreadID,
		"title":     t.Title,
	})
}

func (h *Handler) ListCommunicationProfiles(c *gin.Context) {
	ok(c, gin.H{"profiles": brand.ProfilesSummary()})
}

type sendAsyncReq struct {
	UserID   string `json:"userId" binding:"required"`
	ThreadID string `json:"threadId" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

// SendChatMessageAsync persists the user turn, records a job and hands it
// to the queue. The reply is produced by a worker; clients poll the job.
func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}
	if h.Rabbit == nil {
		fail(c, http.StatusServiceUnavailable, 50301, "job queue unavailable")
		return
	}

	var req sendAsyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	uid, okk := parseUserID(req.UserID)
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, 40002, "message is required")
		return
	}
	key, okk := idempotencyKey(c)
	if !okk {
		fail(c, http.StatusBadRequest, 10005, "idempotency key too long")
		return
	}

	ctx := c.Request.Context()

	// A replayed request must not append the turn twice, so the message's
	// external key is derived from the caller's idempotency key.
	var turnKey *string
	if key != nil {
		derived := *key + ":user"
		turnKey = &derived
	}
	if _, err := h.ChatSvc.InsertUserTurn(ctx, uid, b.ID, req.ThreadID, strings.TrimSpace(req.Message), turnKey); err != nil {
		if errors.Is(err, chat.ErrThreadNotFound) {
			fail(c, http.StatusNotFound, 40402, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "failed to enqueue message")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "failed to enqueue message")
		return
	}
	job := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		ThreadID:       req.ThreadID,
		BrandID:        b.ID,
		Prompt:         strings.TrimSpace(req.Message),
		IdempotencyKey: key,
		Status:         chat.JobQueued,
	}
	saved, created, err := h.ChatSvc.CreateJobOrGetExisting(ctx, job)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "failed to enqueue message")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(ctx, saved.ID); err != nil {
			logger.Log.Errorf("[sendChatMessageAsync] publish job=%s: %v", saved.ID, err)
			fail(c, http.StatusInternalServerError, 50003, "failed to enqueue message")
			return
		}
	}

	ok(c, gin.H{
		"job_id": saved.ID,
		"status": saved.Status,
	})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	b, okk := brandFromContext(c)
	if !okk {
		return
	}
	uid, okk := parseUserID(c.Query("userId"))
	if !okk {
		fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}

	job, err := h.ChatSvc.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil || job.UserID != uid || job.BrandID != b.ID {
		// hide foreign jobs
		fail(c, http.StatusNotFound, 40404, "job not found")
		return
	}

	out := gin.H{
		"job_id":    job.ID,
		"thread_id": job.ThreadID,
		"status":    job.Status,
	}
	if job.ResultMessageID != nil {
		out["result_message_id"] = *job.ResultMessageID
	}
	if job.Error != nil {
		out["error"] = *job.Error
	}
	ok(c, out)
}
