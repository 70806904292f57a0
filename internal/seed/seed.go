package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	payouttierdomain "github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	"gorm.io/gorm"
)

type defaultRule struct {
	name         string
	minCompleted int64
	windowDays   int64
	percent      int64
}

var defaultRules = []defaultRule{
	{name: "Momentum", minCompleted: 10, windowDays: 30, percent: 65},
	{name: "Pro", minCompleted: 25, windowDays: 30, percent: 70},
	{name: "Elite", minCompleted: 50, windowDays: 60, percent: 75},
}

// EnsureDefaultPayoutRules inserts the starter tier ladder. Rules are matched
// by name so repeated boots never duplicate them or undo admin edits.
func EnsureDefaultPayoutRules(db *gorm.DB, node *snowflake.Node) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	ctx := context.Background()
	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range defaultRules {
			ok, err := ensureRuleTx(ctx, tx, node, def)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func ensureRuleTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, def defaultRule) (bool, error) {
	var rule payouttierdomain.PayoutRule
	err := tx.WithContext(ctx).Where("name = ?", def.name).First(&rule).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	rule = payouttierdomain.PayoutRule{
		ID:                  node.Generate(),
		Name:                def.name,
		MinCompletedTickets: def.minCompleted,
		TimeWindowDays:      def.windowDays,
		PayoutPercent:       def.percent,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.WithContext(ctx).Create(&rule).Error; err != nil {
		return false, err
	}
	return true, nil
}
