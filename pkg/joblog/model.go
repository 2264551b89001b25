package joblog

import "time"

// Line is one stored execution log line.
type Line struct {
	ID        uint      `gorm:"primaryKey"`
	LogID     int64     `gorm:"uniqueIndex:idx_log_line;not null"`
	LineNum   int       `gorm:"uniqueIndex:idx_log_line;not null"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName returns the table name for Line.
func (Line) TableName() string {
	return "job_log_lines"
}

// Fragment is a contiguous range of log lines for one log id.
type Fragment struct {
	FromLineNum int    `json:"fromLineNum"`
	ToLineNum   int    `json:"toLineNum"`
	LogContent  string `json:"logContent"`
	IsEnd       bool   `json:"isEnd"`
}
