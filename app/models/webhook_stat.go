package models

import "time"

// WebhookStat aggregates processed/failed webhook counts per provider and
// day. Counts are collected in Redis and flushed here in batches.
type WebhookStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Provider  string    `gorm:"type:varchar(20);not null;index:ux_webhook_stats_provider_day,unique,priority:1" json:"provider"`
	Day       string    `gorm:"type:varchar(10);not null;index:ux_webhook_stats_provider_day,unique,priority:2" json:"day"`
	Processed int64     `gorm:"not null;default:0" json:"processed"`
	Failed    int64     `gorm:"not null;default:0" json:"failed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
