package chat

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/iadvisors/brand-assistant/internal/ai"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Thread is a conversation session between one owner and the assistant
// within one brand. The brand and owner never change for its lifetime.
type Thread struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ThreadID    string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"thread_id"`
	UserID      uint64    `gorm:"not null;index:idx_threads_user_brand,priority:1;index:uniq_thread_external,unique,priority:1" json:"-"`
	BrandID     string    `gorm:"type:varchar(36);not null;index:idx_threads_user_brand,priority:2" json:"brand_id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	ExternalKey *string   `gorm:"type:varchar(128);index:uniq_thread_external,unique,priority:2" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Thread) TableName() string { return "threads" }

// Message is one turn of a thread. brand_id is denormalized from the thread
// for tenant-scoped queries and always equals it. external_key is the
// idempotency key guarding against double writes on retried calls.
type Message struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID       string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"message_id"`
	ThreadID        string    `gorm:"type:varchar(26);not null;index" json:"thread_id"`
	BrandID         string    `gorm:"type:varchar(36);not null;index" json:"brand_id"`
	Role            string    `gorm:"type:varchar(16);not null" json:"role"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	ExternalKey     *string   `gorm:"type:varchar(128);index:uniq_msg_external,unique" json:"-"`
	DisplayMetadata *string   `gorm:"type:text" json:"display_metadata"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Display-metadata keys for an embedded image attachment. The bytes are
// stored base64-encoded so later turns can replay the image to the model.
const (
	metaImageFilename = "imageFilename"
	metaImageFormat   = "imageFormat"
	metaImageBytes    = "imageBytes"
)

func encodeMetadata(md map[string]any) (*string, error) {
	if len(md) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func decodeMetadata(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(*raw), &md); err != nil {
		return nil
	}
	return md
}

// imageFromMetadata reconstructs the embedded image of a persisted turn,
// or nil when the metadata carries none.
func imageFromMetadata(md map[string]any) *ai.ImageBlock {
	if md == nil {
		return nil
	}
	encoded, _ := md[metaImageBytes].(string)
	if encoded == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	format, _ := md[metaImageFormat].(string)
	if format == "" {
		format = "png"
	}
	return &ai.ImageBlock{Format: format, Bytes: raw}
}
