package ops

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VenueRecord is a venue row.
type VenueRecord struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"uniqueIndex;size:64;not null"`
	LatencyUs   int64   `gorm:"not null"`
	Reliability float64 `gorm:"not null"`
	RejectRate  float64
	PubAddr     string `gorm:"size:255"`
	SubAddr     string `gorm:"size:255"`
	Enabled     bool   `gorm:"not null;default:true"`
	UpdatedAt   time.Time
}

func (VenueRecord) TableName() string {
	return "venues"
}

// Venue converts the row.
func (r VenueRecord) Venue() VenueConfig {
	return VenueConfig{
		Name:        r.Name,
		Latency:     time.Duration(r.LatencyUs) * time.Microsecond,
		Reliability: r.Reliability,
		RejectRate:  r.RejectRate,
		PubAddr:     r.PubAddr,
		SubAddr:     r.SubAddr,
	}
}

func recordOf(v VenueConfig) VenueRecord {
	return VenueRecord{
		Name:        v.Name,
		LatencyUs:   v.Latency.Microseconds(),
		Reliability: v.Reliability,
		RejectRate:  v.RejectRate,
		PubAddr:     v.PubAddr,
		SubAddr:     v.SubAddr,
		Enabled:     true,
	}
}

// VenueStore loads venue definitions from PostgreSQL.
type VenueStore struct {
	db *gorm.DB
}

// NewVenueStore wraps db.
func NewVenueStore(db *gorm.DB) *VenueStore {
	return &VenueStore{db: db}
}

// Migrate creates or updates the venues table.
func (s *VenueStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&VenueRecord{}); err != nil {
		return errors.Wrap(err, "migrate venues")
	}
	return nil
}

// List returns the enabled venues ordered by name.
func (s *VenueStore) List(ctx context.Context) ([]VenueConfig, error) {
	var rows []VenueRecord
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("name").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list venues")
	}
	out := make([]VenueConfig, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Venue())
	}
	return out, nil
}

// Upsert inserts v or updates the row with the same name.
func (s *VenueStore) Upsert(ctx context.Context, v VenueConfig) error {
	rec := recordOf(v)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"latency_us", "reliability", "reject_rate", "pub_addr", "sub_addr", "enabled", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return errors.Wrapf(err, "upsert venue %s", v.Name)
	}
	return nil
}

// Disable keeps the row but drops it from List.
func (s *VenueStore) Disable(ctx context.Context, name string) error {
	err := s.db.WithContext(ctx).Model(&VenueRecord{}).Where("name = ?", name).Update("enabled", false).Error
	if err != nil {
		return errors.Wrapf(err, "disable venue %s", name)
	}
	return nil
}
