package chat

import (
	"context"
	"fmt"
	"testing"
)

func TestInsertMessageOrGetExisting_DuplicateKey(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	key := "external-1"

	first := &Message{
		MessageID:   "01MSG000000000000000000001",
		ThreadID:    "01THR000000000000000000001",
		BrandID:     "b-1",
		Role:        RoleUser,
		Content:     "hola",
		ExternalKey: &key,
	}
	saved, created, err := repo.InsertMessageOrGetExisting(context.Background(), first)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !created {
		t.Fatalf("expected first insert to create")
	}

	dup := &Message{
		MessageID:   "01MSG000000000000000000002",
		ThreadID:    first.ThreadID,
		BrandID:     "b-1",
		Role:        RoleUser,
		Content:     "hola otra vez",
		ExternalKey: &key,
	}
	existing, created, err := repo.InsertMessageOrGetExisting(context.Background(), dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate to return existing")
	}
	if existing.MessageID != saved.MessageID || existing.Content != "hola" {
		t.Fatalf("duplicate returned wrong row: %+v", existing)
	}

	var count int64
	if err := db.Model(&Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 message, got %d", count)
	}
}

func TestInsertMessageOrGetExisting_NilKeysNeverCollide(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	for i := 0; i < 3; i++ {
		m := &Message{
			MessageID: fmt.Sprintf("01MSG0000000000000000000%02d", i),
			ThreadID:  "01THR000000000000000000001",
			BrandID:   "b-1",
			Role:      RoleUser,
			Content:   "x",
		}
		if _, created, err := repo.InsertMessageOrGetExisting(context.Background(), m); err != nil || !created {
			t.Fatalf("insert %d: created=%v err=%v", i, created, err)
		}
	}
}

func TestCreateThreadOrGetExisting_DuplicateKey(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	key := "thread-key"

	first := &Thread{
		ThreadID:    "01THR000000000000000000001",
		UserID:      1,
		BrandID:     "b-1",
		Title:       "t",
		ExternalKey: &key,
	}
	if _, created, err := repo.CreateThreadOrGetExisting(context.Background(), first); err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := &Thread{
		ThreadID:    "01THR000000000000000000002",
		UserID:      1,
		BrandID:     "b-1",
		Title:       "t2",
		ExternalKey: &key,
	}
	existing, created, err := repo.CreateThreadOrGetExisting(context.Background(), dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created || existing.ThreadID != first.ThreadID {
		t.Fatalf("expected existing thread back, got created=%v id=%s", created, existing.ThreadID)
	}

	// same key under a different user is a different thread
	otherUser := &Thread{
		ThreadID:    "01THR000000000000000000003",
		UserID:      2,
		BrandID:     "b-1",
		Title:       "t3",
		ExternalKey: &key,
	}
	if _, created, err := repo.CreateThreadOrGetExisting(context.Background(), otherUser); err != nil || !created {
		t.Fatalf("other user create: created=%v err=%v", created, err)
	}
}

func TestListRecentMessagesDesc_Limit(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	for i := 0; i < 5; i++ {
		m := &Message{
			MessageID: fmt.Sprintf("01MSG0000000000000000000%02d", i),
			ThreadID:  "01THR000000000000000000001",
			BrandID:   "b-1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("m%d", i),
		}
		if err := repo.InsertMessage(context.Background(), m); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	msgs, err := repo.ListRecentMessagesDesc(context.Background(), "01THR000000000000000000001", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2, got %d", len(msgs))
	}
	if msgs[0].Content != "m4" || msgs[1].Content != "m3" {
		t.Fatalf("expected newest first, got %q %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestCreateJobOrGetExisting_IdempotencyKey(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	key := "retry-key"

	first := &Job{
		ID:             "01JOB000000000000000000001",
		UserID:         1,
		ThreadID:       "01THR000000000000000000001",
		BrandID:        "b-1",
		Prompt:         "hola",
		IdempotencyKey: &key,
		Status:         JobQueued,
	}
	if _, created, err := repo.CreateJobOrGetExisting(context.Background(), first); err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := &Job{
		ID:             "01JOB000000000000000000002",
		UserID:         1,
		ThreadID:       first.ThreadID,
		BrandID:        "b-1",
		Prompt:         "hola",
		IdempotencyKey: &key,
		Status:         JobQueued,
	}
	existing, created, err := repo.CreateJobOrGetExisting(context.Background(), dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created || existing.ID != first.ID {
		t.Fatalf("expected existing job back, got created=%v id=%s", created, existing.ID)
	}
}

func TestJobLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	job := &Job{
		ID:       "01JOB000000000000000000001",
		UserID:   1,
		ThreadID: "01THR000000000000000000001",
		BrandID:  "b-1",
		Prompt:   "hola",
		Status:   JobQueued,
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.UpdateJobStatusRunning(context.Background(), job.ID); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := repo.MarkJobSucceeded(context.Background(), job.ID, "01MSG000000000000000000001"); err != nil {
		t.Fatalf("succeed: %v", err)
	}

	got, err := repo.GetJobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != JobSucceeded || got.ResultMessageID == nil || *got.ResultMessageID != "01MSG000000000000000000001" {
		t.Fatalf("unexpected job state: %+v", got)
	}
}
