package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ProcessingRecord tracks one completed OCR run for the history endpoint.
type ProcessingRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Filename       string    `gorm:"index" json:"filename"`
	Mode           string    `json:"mode"` // "image", "pdf" or "pdf_enhanced"
	NumPages       int       `json:"num_pages"`
	TotalElements  int       `json:"total_elements"`
	ProcessingTime float64   `json:"processing_time"`
	OutputDir      string    `json:"output_dir"`
	CreatedAt      time.Time `json:"created_at"`
}

// InitializeDB opens (creating if needed) the SQLite history database under
// dbDir and migrates the schema.
func InitializeDB(dbDir string) (*gorm.DB, error) {
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbPath := filepath.Join(dbDir, "deepseek-ocr.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&ProcessingRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return db, nil
}

// InsertProcessingRecord stores a completed run.
func InsertProcessingRecord(db *gorm.DB, record ProcessingRecord) error {
	if err := db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert processing record: %w", err)
	}
	return nil
}

// GetAllProcessingRecords returns the run history, most recent first.
func GetAllProcessingRecords(db *gorm.DB) ([]ProcessingRecord, error) {
	var records []ProcessingRecord
	if err := db.Order("created_at desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query processing records: %w", err)
	}
	return records, nil
}
