package models

import (
	"time"
)

const (
	CategoryAcademic        = "academic"
	CategoryAdministrative  = "administrative"
	CategorySupport         = "support"
	CategoryExtracurricular = "extracurricular"
	CategoryOther           = "other"
)

type ServiceType struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	DefaultDuration int       `json:"default_duration"` // minutes
	IsActive        bool      `json:"is_active"`
	Icon            string    `json:"icon"`
	CreatedByID     string    `json:"created_by_id"`
	CreatedAt       time.Time `json:"created_at"`
}

func ValidCategory(c string) bool {
	switch c {
	case CategoryAcademic, CategoryAdministrative, CategorySupport,
		CategoryExtracurricular, CategoryOther:
		return true
	}
	return false
}
