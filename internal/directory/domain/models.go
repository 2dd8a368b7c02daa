// Package domain contains persistence models for the reseller/client directory.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Reseller is an admin tenant that resells services to its own clients.
// CommissionRate is a whole percentage in [0, 100].
type Reseller struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	Name           string            `json:"name" gorm:"type:text;not null"`
	Email          string            `json:"email" gorm:"type:text;not null;uniqueIndex"`
	CommissionRate int64             `json:"commission_rate" gorm:"not null;default:0"`
	Active         bool              `json:"active" gorm:"not null;default:true"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Reseller) TableName() string { return "resellers" }

// Client belongs to exactly one reseller and consumes assigned services.
type Client struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ResellerID snowflake.ID      `json:"reseller_id" gorm:"not null;index"`
	Name       string            `json:"name" gorm:"type:text;not null"`
	Email      string            `json:"email,omitempty" gorm:"type:text"`
	Phone      string            `json:"phone,omitempty" gorm:"type:text"`
	Active     bool              `json:"active" gorm:"not null;default:true"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }
