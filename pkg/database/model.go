package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Run represents a record in the runs table, one per fuzzer process
type Run struct {
	ID        string    `gorm:"primaryKey;column:id"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
	Target    string    `gorm:"column:target;not null"`
	SeedDir   string    `gorm:"column:seed_dir"`
	OutputDir string    `gorm:"column:output_dir"`
	Instance  string    `gorm:"column:instance"`
	Metric    Metric    `gorm:"column:metric;type:jsonb"`
}

// Seed represents a record in the seeds table
type Seed struct {
	ID        int       `gorm:"primaryKey;column:id"`
	RunID     string    `gorm:"column:run_id;not null;index"`
	SeedID    int       `gorm:"column:seed_id"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	Path      string    `gorm:"column:path"`
	Size      int       `gorm:"column:size"`
	NewNode   int64     `gorm:"column:newnode"`
}

// Crash represents a record in the crashes table
type Crash struct {
	ID        int       `gorm:"primaryKey;column:id"`
	RunID     string    `gorm:"column:run_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	Kind      string    `gorm:"column:kind;not null"`
	Path      string    `gorm:"column:path;not null"`
	Hash      string    `gorm:"column:hash;not null"`
}

// Metric represents the jsonb field in the runs table
type Metric map[string]any

// Value implements the driver.Valuer interface for the Metric type
func (m Metric) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for the Metric type
func (m *Metric) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, &m)
}
