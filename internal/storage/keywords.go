package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

const keywordColumns = "id, slot_type, keyword, link_url, slot_count, current_rank, " +
	"last_check_date, attempts, created_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKeyword(row rowScanner) (*types.Keyword, error) {
	k := &types.Keyword{}
	var currentRank, lastCheck sql.NullInt64
	var createdAt int64
	if err := row.Scan(
		&k.ID,
		&k.SlotType,
		&k.Keyword,
		&k.LinkURL,
		&k.SlotCount,
		&currentRank,
		&lastCheck,
		&k.Attempts,
		&createdAt,
	); err != nil {
		return nil, err
	}
	k.CurrentRank = intPtr(currentRank)
	k.LastCheckDate = unixPtr(lastCheck)
	k.CreatedAt = fromUnix(createdAt)
	return k, nil
}

// EnqueueKeyword registers a rank-check job unless one is already pending for the
// same keyword and link. It reports whether a new row was created.
func (s *Store) EnqueueKeyword(ctx context.Context, slotType, keyword, linkURL string) (*types.Keyword, bool, error) {
	if slotType == "" {
		slotType = types.DefaultSlotType
	}

	var job *types.Keyword
	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanKeyword(tx.QueryRowContext(ctx,
			s.rebind("SELECT "+keywordColumns+" FROM keywords WHERE keyword = ? AND link_url = ? ORDER BY id LIMIT 1"),
			keyword, linkURL,
		))
		if err == nil {
			job = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check pending keyword: %w", err)
		}

		now := s.now().Unix()
		job, err = scanKeyword(tx.QueryRowContext(ctx,
			s.rebind(`INSERT INTO keywords (slot_type, keyword, link_url, slot_count, attempts, created_at)
			 VALUES (?, ?, ?, 1, 0, ?)
			 RETURNING `+keywordColumns),
			slotType, keyword, linkURL, now,
		))
		if err != nil {
			return fmt.Errorf("failed to insert keyword: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, created, nil
}

// ListKeywords returns pending jobs in id order, optionally restricted to one slot type
func (s *Store) ListKeywords(ctx context.Context, slotType string) ([]types.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+keywordColumns+" FROM keywords WHERE (? = '' OR slot_type = ?) ORDER BY id"),
		slotType, slotType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query keywords: %w", err)
	}
	defer closeRows(rows)

	keywords := []types.Keyword{}
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		keywords = append(keywords, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keywords: %w", err)
	}
	return keywords, nil
}

// ClaimKeyword atomically leases the oldest unclaimed job. The conditional update only
// succeeds while the row is still unclaimed, so concurrent resolvers never share a job
// within a lease. Returns nil without error when nothing is available.
func (s *Store) ClaimKeyword(ctx context.Context, slotType string, lease time.Duration) (*types.Keyword, error) {
	now := s.now().Unix()
	until := s.now().Add(lease).Unix()

	job, err := scanKeyword(s.db.QueryRowContext(ctx,
		s.rebind(`UPDATE keywords SET claimed_until = ?
		 WHERE id = (
		   SELECT id FROM keywords
		   WHERE (? = '' OR slot_type = ?)
		     AND (claimed_until IS NULL OR claimed_until <= ?)
		     AND link_url LIKE '%/products/%'
		   ORDER BY id LIMIT 1
		 )
		 AND (claimed_until IS NULL OR claimed_until <= ?)
		 RETURNING `+keywordColumns),
		until, slotType, slotType, now, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim keyword: %w", err)
	}
	return job, nil
}

// DeleteKeyword removes a consumed job
func (s *Store) DeleteKeyword(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM keywords WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete keyword %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("keyword %d: %w", id, ErrNotFound)
	}
	return nil
}

// FailKeyword records an unsuccessful check: attempts is incremented and the job is held
// back until retryAt. Returns the updated attempt count.
func (s *Store) FailKeyword(ctx context.Context, id int64, checkedAt, retryAt time.Time) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`UPDATE keywords SET attempts = attempts + 1, last_check_date = ?, claimed_until = ?
		 WHERE id = ? RETURNING attempts`),
		checkedAt.Unix(), retryAt.Unix(), id,
	).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("keyword %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record failed check for keyword %d: %w", id, err)
	}
	return attempts, nil
}

// CountKeywords returns the number of pending jobs
func (s *Store) CountKeywords(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM keywords").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count keywords: %w", err)
	}
	return count, nil
}

// EnqueueRechecks queues one job for every distinct keyword and link held by an unexpired
// slot-status row that has no pending job yet. Returns the number of queued jobs.
func (s *Store) EnqueueRechecks(ctx context.Context) (int64, error) {
	now := s.now().Unix()
	result, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO keywords (slot_type, keyword, link_url, slot_count, attempts, created_at)
		 SELECT st.slot_type, st.keyword, st.link_url, 1, 0, CAST(? AS BIGINT)
		 FROM slot_status st
		 LEFT JOIN slots g ON g.id = st.slot_id
		 WHERE st.status = 'active'
		   AND COALESCE(g.created_at, st.created_at) + st.usage_days * 86400 > ?
		   AND NOT EXISTS (
		     SELECT 1 FROM keywords k WHERE k.keyword = st.keyword AND k.link_url = st.link_url
		   )
		 GROUP BY st.slot_type, st.keyword, st.link_url`),
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue rank rechecks: %w", err)
	}
	queued, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return queued, nil
}
