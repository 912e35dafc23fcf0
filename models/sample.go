package models

import "time"

type Sample struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Timestamp   time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
	CPUTemp     float64   `gorm:"column:cpu_temp;not null" json:"cpu_temp"`
	BatteryTemp float64   `gorm:"column:battery_temp;not null" json:"battery_temp"`
}

func (Sample) TableName() string { return "samples" }
