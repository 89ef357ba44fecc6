package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// AppendRankHistory inserts an immutable history row
func (s *Store) AppendRankHistory(ctx context.Context, entry *types.RankHistory) error {
	err := s.db.QueryRowContext(ctx,
		s.rebind(`INSERT INTO rank_history
		 (slot_status_id, keyword, link_url, current_rank, start_rank, check_date)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		entry.SlotStatusID,
		entry.Keyword,
		entry.LinkURL,
		nullableInt(entry.CurrentRank),
		nullableInt(entry.StartRank),
		entry.CheckDate.Unix(),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert rank history: %w", err)
	}
	return nil
}

// ListRankHistory returns history rows for a slot-status row, newest first
func (s *Store) ListRankHistory(ctx context.Context, slotStatusID int64, limit int) ([]types.RankHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 10000 {
		limit = 10000
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, slot_status_id, keyword, link_url, current_rank, start_rank, check_date
		 FROM rank_history WHERE slot_status_id = ?
		 ORDER BY check_date DESC, id DESC LIMIT ?`),
		slotStatusID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rank history: %w", err)
	}
	defer closeRows(rows)

	history := []types.RankHistory{}
	for rows.Next() {
		var entry types.RankHistory
		var currentRank, startRank sql.NullInt64
		var checkDate int64
		if err := rows.Scan(
			&entry.ID,
			&entry.SlotStatusID,
			&entry.Keyword,
			&entry.LinkURL,
			&currentRank,
			&startRank,
			&checkDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rank history: %w", err)
		}
		entry.CurrentRank = intPtr(currentRank)
		entry.StartRank = intPtr(startRank)
		entry.CheckDate = fromUnix(checkDate)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rank history: %w", err)
	}
	return history, nil
}
