package models

import (
	"time"
)

// SensorReading is one decoded sample from the filtration rig. The reduction
// values are stored exactly as the device reported them.
type SensorReading struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Timestamp    time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	COBefore     float64   `gorm:"column:co_before" json:"co_before"`
	NOxBefore    float64   `gorm:"column:nox_before" json:"nox_before"`
	COAfter      float64   `gorm:"column:co_after" json:"co_after"`
	NOxAfter     float64   `gorm:"column:nox_after" json:"nox_after"`
	COReduction  float64   `gorm:"column:co_reduction" json:"co_reduction"`
	NOxReduction float64   `gorm:"column:nox_reduction" json:"nox_reduction"`
}

func (SensorReading) TableName() string {
	return "sensor_readings"
}
