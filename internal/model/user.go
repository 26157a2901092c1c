package model

import "time"

type User struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	PasswordHash         string    `json:"-"`
	FullName             string    `json:"full_name"`
	SkillLevel           *string   `json:"skill_level"`
	AvailableHoursPerDay *float64  `json:"available_hours_per_day"`
	PreferredPace        *string   `json:"preferred_pace"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ProfileUpdate carries the optional fields of PUT /api/auth/me; nil means unchanged.
type ProfileUpdate struct {
	FullName             *string
	SkillLevel           *string
	AvailableHoursPerDay *float64
	PreferredPace        *string
}
