package monitoring

import (
	"context"

	"gorm.io/gorm"
)

// NewDatabaseProbe returns a Probe issuing a lightweight query against the
// row-store. The monitor wraps it with the probe timeout.
func NewDatabaseProbe(db *gorm.DB) Probe {
	return func(ctx context.Context) error {
		var one int
		return db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
	}
}
