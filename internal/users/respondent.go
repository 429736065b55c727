package users

import (
	"strings"
)

// Respondent maps a provider login onto the canonical user id stored with submissions.
type Respondent struct {
	Provider           string `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject            string `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID             string `gorm:"column:user_id;size:190;not null;index"`
	Email              string `gorm:"column:user_email;size:320"`
	DisplayName        string `gorm:"column:user_display_name;size:320"`
	FirstSeenAtSeconds int64  `gorm:"column:first_seen_at_s;not null"`
	LastSeenAtSeconds  int64  `gorm:"column:last_seen_at_s;not null"`
}

// TableName exposes the table backing respondents.
func (Respondent) TableName() string {
	return "survey_respondents"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
