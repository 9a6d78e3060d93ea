package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/xuegao65/agent-back/internal/apperror"
	"github.com/xuegao65/agent-back/internal/model"
)

const tokenBatchSize = 500

var tokenColumns = []string{"name", "symbol", "decimals", "daily_volume", "created_at", "full_data"}

// tokenChanged limits the conflict update to rows whose content differs, so
// re-running a refresh over identical data reports zero affected rows.
const tokenChanged = `(tokens.name, tokens.symbol, tokens.decimals, tokens.daily_volume, tokens.created_at, tokens.full_data)
	IS DISTINCT FROM (excluded.name, excluded.symbol, excluded.decimals, excluded.daily_volume, excluded.created_at, excluded.full_data)`

// UpsertTokens inserts or updates tokens keyed by address and returns the
// number of rows inserted or changed.
func (s *Store) UpsertTokens(ctx context.Context, tokens []model.Token) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns(tokenColumns),
			Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: tokenChanged}}},
		}).
		CreateInBatches(tokens, tokenBatchSize)
	if res.Error != nil {
		return 0, apperror.Storage("upsert tokens", res.Error)
	}
	return res.RowsAffected, nil
}

// FindToken returns the token whose address equals query or whose symbol
// equals query ignoring case. An address match wins; among symbol matches the
// highest daily volume wins, then the lowest address.
func (s *Store) FindToken(ctx context.Context, query string) (*model.Token, error) {
	var tok model.Token
	err := s.db.WithContext(ctx).
		Where("address = ? OR LOWER(symbol) = LOWER(?)", query, query).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN address = ? THEN 0 ELSE 1 END, daily_volume DESC NULLS LAST, address ASC",
			Vars:               []interface{}{query},
			WithoutParentheses: true,
		}}).
		Take(&tok).Error
	if err != nil {
		return nil, notFoundOr(err, "token "+query, "find token")
	}
	return &tok, nil
}

// CountTokens returns the catalog size.
func (s *Store) CountTokens(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Token{}).Count(&n).Error; err != nil {
		return 0, apperror.Storage("count tokens", err)
	}
	return n, nil
}
