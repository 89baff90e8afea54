// Package runstore persists training runs and their epoch metrics to a
// local SQLite database so runs can be compared after the fact.
package runstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/golangast/sentclass/errs"
)

// Run is one training invocation.
type Run struct {
	ID        string `gorm:"primaryKey"`
	Model     string
	StartedAt time.Time
}

// Metric is one logged value, tied to its run.
type Metric struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"index"`
	Name  string
	Value float64
	Epoch int
}

// Store wraps the database handle and the run being recorded.
type Store struct {
	db    *gorm.DB
	runID string
}

// Open creates or migrates the database at path and registers a new run
// for the given model identifier.
func Open(path, model string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &errs.FileError{Path: path, Err: err}
	}
	if err := db.AutoMigrate(&Run{}, &Metric{}); err != nil {
		return nil, &errs.FileError{Path: path, Err: err}
	}

	run := Run{ID: uuid.NewString(), Model: model, StartedAt: time.Now()}
	if err := db.Create(&run).Error; err != nil {
		return nil, &errs.FileError{Path: path, Err: err}
	}
	return &Store{db: db, runID: run.ID}, nil
}

// RunID returns the identifier of the active run.
func (s *Store) RunID() string { return s.runID }

// Log records one metric for the active run. Storage failures are
// swallowed so a broken metrics database never aborts training.
func (s *Store) Log(name string, value float64, epoch int) {
	s.db.Create(&Metric{RunID: s.runID, Name: name, Value: value, Epoch: epoch})
}

// Metrics returns every metric of the active run in insertion order.
func (s *Store) Metrics() ([]Metric, error) {
	var out []Metric
	err := s.db.Where("run_id = ?", s.runID).Order("id").Find(&out).Error
	return out, err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
