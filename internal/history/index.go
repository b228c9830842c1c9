package history

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/corestate/statecraft/internal/errs"
)

// IndexedRecord is the gorm model backing the secondary queryable index
// over collapsed history records.
type IndexedRecord struct {
	ID              string `gorm:"primaryKey"`
	RunID           string `gorm:"index"`
	StateName       string `gorm:"index"`
	StateType       string `gorm:"index"`
	OutcomeName     string
	TimestampCall   time.Time `gorm:"index"`
	TimestampReturn time.Time
	Path            datatypes.JSON
	DataIns         datatypes.JSON
	DataOuts        datatypes.JSON
}

func (IndexedRecord) TableName() string { return "history_records" }

// Index is a gorm secondary index (sqlite or postgres) over collapsed records, queried by
// analysis tooling (state-name search, time-range scans) that the primary
// bbolt keyed log isn't shaped for.
type Index struct {
	db *gorm.DB
}

// OpenIndex opens (migrating if needed) a sqlite-backed index at path, for
// a single-operator workspace (a local statecraftd).
func OpenIndex(path string) (*Index, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errs.PersistenceFault("history.OpenIndex", err)
	}
	return openIndex(db)
}

// OpenIndexPostgres opens (migrating if needed) a postgres-backed index,
// for a statecraftd deployment sharing one history index across several
// engine instances.
func OpenIndexPostgres(dsn string) (*Index, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errs.PersistenceFault("history.OpenIndexPostgres", err)
	}
	return openIndex(db)
}

func openIndex(db *gorm.DB) (*Index, error) {
	if err := db.AutoMigrate(&IndexedRecord{}); err != nil {
		return nil, errs.PersistenceFault("history.OpenIndex", err)
	}
	return &Index{db: db}, nil
}

// Ingest upserts every collapsed record from c into the index.
func (x *Index) Ingest(c *Collapse) error {
	for _, r := range c.Records {
		path, _ := marshalJSON(r.Path)
		ins, _ := marshalJSON(r.DataIns)
		outs, _ := marshalJSON(r.DataOuts)
		row := IndexedRecord{
			ID:              r.ID,
			RunID:           r.RunID,
			StateName:       r.StateName,
			StateType:       r.StateType,
			OutcomeName:     r.OutcomeName,
			TimestampCall:   r.TimestampCall,
			TimestampReturn: r.TimestampReturn,
			Path:            path,
			DataIns:         ins,
			DataOuts:        outs,
		}
		if err := x.db.Save(&row).Error; err != nil {
			return errs.PersistenceFault("history.Ingest", err)
		}
	}
	return nil
}

// ByStateName returns every indexed record whose state name matches, most
// recent first.
func (x *Index) ByStateName(name string) ([]IndexedRecord, error) {
	var rows []IndexedRecord
	err := x.db.Where("state_name = ?", name).Order("timestamp_call desc").Find(&rows).Error
	if err != nil {
		return nil, errs.PersistenceFault("history.ByStateName", err)
	}
	return rows, nil
}

// Close releases the underlying database connection.
func (x *Index) Close() error {
	sqlDB, err := x.db.DB()
	if err != nil {
		return errs.PersistenceFault("history.Close", err)
	}
	if err := sqlDB.Close(); err != nil {
		return errs.PersistenceFault("history.Close", err)
	}
	return nil
}

func marshalJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
