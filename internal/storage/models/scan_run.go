package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScanRun 一次简历扫描运行的审计记录
type ScanRun struct {
	RunID            string         `gorm:"type:char(36);primaryKey"`
	OriginalFilename string         `gorm:"type:varchar(255)"`
	FileSize         int64          `gorm:"type:bigint"`
	FinalState       string         `gorm:"type:varchar(32);not null;index:idx_scan_runs_state"`
	ErrorKind        string         `gorm:"type:varchar(64)"`
	ErrorMessage     string         `gorm:"type:text"`
	ExtractStrategy  string         `gorm:"type:varchar(32)"`
	SinkMode         string         `gorm:"type:varchar(16)"`
	PersistOutcome   string         `gorm:"type:varchar(16)"`
	CandidateKey     string         `gorm:"type:varchar(255);index:idx_scan_runs_candidate_key"`
	StatusesJSON     datatypes.JSON `gorm:"type:json"`
	StartedAt        time.Time      `gorm:"type:datetime(6)"`
	FinishedAt       time.Time      `gorm:"type:datetime(6)"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (ScanRun) TableName() string {
	return "scan_runs"
}
