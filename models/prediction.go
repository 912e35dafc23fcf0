package models

import "time"

// Prediction is a forecast for a future instant. Timestamp is the forecast
// target, not the time the prediction was made.
type Prediction struct {
	ID                   uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Timestamp            time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
	PredictedCPUTemp     float64   `gorm:"column:predicted_cpu_temp;not null" json:"predicted_cpu_temp"`
	PredictedBatteryTemp float64   `gorm:"column:predicted_battery_temp;not null" json:"predicted_battery_temp"`
}

func (Prediction) TableName() string { return "predictions" }
