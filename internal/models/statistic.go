package models

// DateLayout is the calendar date format used as the DailyStatistic key.
const DateLayout = "2006-01-02"

// DailyStatistic is the per-day summary derived from SensorReading rows. It
// is always recomputed from the stored readings, never edited directly.
type DailyStatistic struct {
	Date            string  `gorm:"column:date;primaryKey" json:"date"`
	AvgCOBefore     float64 `gorm:"column:avg_co_before" json:"avg_co_before"`
	AvgNOxBefore    float64 `gorm:"column:avg_nox_before" json:"avg_nox_before"`
	AvgCOAfter      float64 `gorm:"column:avg_co_after" json:"avg_co_after"`
	AvgNOxAfter     float64 `gorm:"column:avg_nox_after" json:"avg_nox_after"`
	AvgCOReduction  float64 `gorm:"column:avg_co_reduction" json:"avg_co_reduction"`
	AvgNOxReduction float64 `gorm:"column:avg_nox_reduction" json:"avg_nox_reduction"`
	MaxCOBefore     float64 `gorm:"column:max_co_before" json:"max_co_before"`
	MaxNOxBefore    float64 `gorm:"column:max_nox_before" json:"max_nox_before"`
	MinCOBefore     float64 `gorm:"column:min_co_before" json:"min_co_before"`
	MinNOxBefore    float64 `gorm:"column:min_nox_before" json:"min_nox_before"`
	ReadingCount    int64   `gorm:"column:reading_count" json:"reading_count"`
}

func (DailyStatistic) TableName() string {
	return "sensor_statistics"
}
