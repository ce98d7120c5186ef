package store

import (
	"context"
	"fmt"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/partition"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
)

// UsageRepository counts storefront rows in the partition bound to the
// request. Table names are unqualified and resolve through the session's
// search_path.
type UsageRepository struct{}

func NewUsageRepository() UsageRepository {
	return UsageRepository{}
}

func (UsageRepository) Usage(ctx context.Context) (domain.Usage, error) {
	sess, ok := partition.SessionFromContext(ctx)
	if !ok {
		return domain.Usage{}, fmt.Errorf("%w: no partition session", domain.ErrPartitionBindFailed)
	}

	var usage domain.Usage
	db := sess.DB()
	if err := db.Table("products").Count(&usage.Products).Error; err != nil {
		return domain.Usage{}, fmt.Errorf("count products in %s: %w", sess.Partition(), err)
	}
	if err := db.Table("orders").Count(&usage.Orders).Error; err != nil {
		return domain.Usage{}, fmt.Errorf("count orders in %s: %w", sess.Partition(), err)
	}
	return usage, nil
}
