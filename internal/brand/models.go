package brand

import (
	"strings"
	"time"
)

// Brand is the per-tenant assistant configuration. Conversation data is
// partitioned by brand id; the chat core reads brands, it never creates them.
type Brand struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name            string    `gorm:"type:varchar(128);not null" json:"name"`
	Slug            string    `gorm:"type:varchar(128);index" json:"slug"`
	Description     string    `gorm:"type:varchar(512)" json:"description"`
	ModelID         string    `gorm:"type:varchar(128);not null" json:"model_id"`
	KnowledgeBaseID string    `gorm:"type:varchar(128)" json:"knowledge_base_id"`
	GuardrailID     string    `gorm:"type:varchar(128)" json:"guardrail_id"`
	Instructions    string    `gorm:"type:text" json:"instructions"`
	Temperature     *float64  `json:"temperature"`
	TopP            *float64  `json:"top_p"`
	MaxTokens       *int      `json:"max_tokens"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Brand) TableName() string { return "brands" }

// UserBrand grants a user access to a brand. is_default marks the brand
// preselected in the console.
type UserBrand struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"not null;index:uniq_user_brand,unique,priority:1"`
	BrandID   string `gorm:"type:varchar(36);not null;index:uniq_user_brand,unique,priority:2"`
	IsDefault bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (UserBrand) TableName() string { return "user_brands" }

// Historical records can still carry identifiers from the platform this
// system migrated away from. They are mapped back to defaults at read time
// so a stale row cannot break inference.
func isLegacyModelID(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return false
	}
	return strings.HasPrefix(v, "asst_") || strings.HasPrefix(v, "gpt-") || strings.Contains(v, "openai")
}

func isLegacyKnowledgeBaseID(value string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(value)), "vs_")
}

// NormalizeModelID returns the model id to use, substituting the default
// for empty or legacy values. The result is never empty.
func NormalizeModelID(value, defaultModelID string) string {
	candidate := strings.TrimSpace(value)
	if candidate == "" || isLegacyModelID(candidate) {
		return defaultModelID
	}
	return candidate
}

// NormalizeKnowledgeBaseID drops empty and legacy identifiers.
func NormalizeKnowledgeBaseID(value string) string {
	candidate := strings.TrimSpace(value)
	if candidate == "" || isLegacyKnowledgeBaseID(candidate) {
		return ""
	}
	return candidate
}
