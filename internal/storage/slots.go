package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

const slotColumns = "id, customer_id, customer_name, slot_type, slot_count, payment_amount, " +
	"usage_days, memo, status, created_at"

const slotStatusColumns = "st.id, st.slot_id, st.customer_id, st.customer_name, st.distributor, " +
	"st.work_group, st.keyword, st.link_url, st.memo, st.equipment_group, st.current_rank, " +
	"st.start_rank, st.slot_count, st.usage_days, st.status, st.slot_type, st.created_at, " +
	"st.last_check_date, g.created_at"

func scanSlot(row rowScanner) (*types.Slot, error) {
	slot := &types.Slot{}
	var status string
	var createdAt int64
	if err := row.Scan(
		&slot.ID,
		&slot.CustomerID,
		&slot.CustomerName,
		&slot.SlotType,
		&slot.SlotCount,
		&slot.PaymentAmount,
		&slot.UsageDays,
		&slot.Memo,
		&status,
		&createdAt,
	); err != nil {
		return nil, err
	}
	slot.Status = types.SlotStatusValue(status)
	slot.CreatedAt = fromUnix(createdAt)
	return slot, nil
}

func scanSlotStatus(row rowScanner) (*types.SlotStatus, error) {
	st := &types.SlotStatus{}
	var slotID, currentRank, startRank, lastCheck, grantCreated sql.NullInt64
	var status string
	var createdAt int64
	if err := row.Scan(
		&st.ID,
		&slotID,
		&st.CustomerID,
		&st.CustomerName,
		&st.Distributor,
		&st.WorkGroup,
		&st.Keyword,
		&st.LinkURL,
		&st.Memo,
		&st.EquipmentGroup,
		&currentRank,
		&startRank,
		&st.SlotCount,
		&st.UsageDays,
		&status,
		&st.SlotType,
		&createdAt,
		&lastCheck,
		&grantCreated,
	); err != nil {
		return nil, err
	}
	st.SlotID = int64Ptr(slotID)
	st.CurrentRank = intPtr(currentRank)
	st.StartRank = intPtr(startRank)
	st.Status = types.SlotStatusValue(status)
	st.CreatedAt = fromUnix(createdAt)
	st.LastCheckDate = unixPtr(lastCheck)
	st.GrantCreatedAt = unixPtr(grantCreated)
	return st, nil
}

// CreateSlot inserts a capacity grant and fills in its id and creation time
func (s *Store) CreateSlot(ctx context.Context, slot *types.Slot) error {
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	if slot.Status == "" {
		slot.Status = types.SlotActive
	}
	if slot.SlotType == "" {
		slot.SlotType = types.DefaultSlotType
	}

	err := s.db.QueryRowContext(ctx,
		s.rebind(`INSERT INTO slots
		 (customer_id, customer_name, slot_type, slot_count, payment_amount, usage_days, memo, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		slot.CustomerID,
		slot.CustomerName,
		slot.SlotType,
		slot.SlotCount,
		slot.PaymentAmount,
		slot.UsageDays,
		slot.Memo,
		string(slot.Status),
		slot.CreatedAt.Unix(),
	).Scan(&slot.ID)
	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", err)
	}
	return nil
}

// ListSlots returns grants newest first, optionally for one customer
func (s *Store) ListSlots(ctx context.Context, customerID string) ([]types.Slot, error) {
	return s.querySlots(ctx,
		"SELECT "+slotColumns+" FROM slots WHERE (? = '' OR customer_id = ?) ORDER BY created_at DESC, id DESC",
		customerID, customerID,
	)
}

// ActiveSlots returns a customer's unexpired grants, longest remaining usage first
func (s *Store) ActiveSlots(ctx context.Context, customerID string) ([]types.Slot, error) {
	return s.querySlots(ctx,
		"SELECT "+slotColumns+` FROM slots WHERE customer_id = ? AND status = ?
		 ORDER BY created_at + usage_days * 86400 DESC, id`,
		customerID, string(types.SlotActive),
	)
}

func (s *Store) querySlots(ctx context.Context, query string, args ...interface{}) ([]types.Slot, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer closeRows(rows)

	slots := []types.Slot{}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}
	return slots, nil
}

// ExpireDueSlots marks every grant whose usage period has elapsed as expired.
// Expiry is evaluated on read; callers invoke this before serving slot data.
func (s *Store) ExpireDueSlots(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE slots SET status = ?
		 WHERE status <> ? AND usage_days > 0 AND created_at + usage_days * 86400 <= ?`),
		string(types.SlotExpired), string(types.SlotExpired), s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire slots: %w", err)
	}
	expired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return expired, nil
}

// UsedUnits returns the number of units a customer has allocated
func (s *Store) UsedUnits(ctx context.Context, customerID string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COALESCE(SUM(slot_count), 0) FROM slot_status WHERE customer_id = ?"),
		customerID,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to sum used units: %w", err)
	}
	return used, nil
}

// UsedUnitsByGrant returns how many units a customer has drawn from each grant
func (s *Store) UsedUnitsByGrant(ctx context.Context, customerID string) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT slot_id, COALESCE(SUM(slot_count), 0) FROM slot_status
		 WHERE customer_id = ? AND slot_id IS NOT NULL GROUP BY slot_id`),
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum used units by grant: %w", err)
	}
	defer closeRows(rows)

	used := make(map[int64]int)
	for rows.Next() {
		var slotID int64
		var count int
		if err := rows.Scan(&slotID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan used units: %w", err)
		}
		used[slotID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating used units: %w", err)
	}
	return used, nil
}

// InsertSlotStatuses inserts allocated units in one transaction and returns them with ids
func (s *Store) InsertSlotStatuses(ctx context.Context, units []types.SlotStatus) ([]types.SlotStatus, error) {
	inserted := make([]types.SlotStatus, 0, len(units))
	now := s.now().UTC().Truncate(time.Second)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, unit := range units {
			if unit.CreatedAt.IsZero() {
				unit.CreatedAt = now
			}
			if unit.Status == "" {
				unit.Status = types.SlotActive
			}
			if unit.SlotType == "" {
				unit.SlotType = types.DefaultSlotType
			}
			if unit.SlotCount == 0 {
				unit.SlotCount = 1
			}

			err := tx.QueryRowContext(ctx,
				s.rebind(`INSERT INTO slot_status
				 (slot_id, customer_id, customer_name, distributor, work_group, keyword, link_url, memo,
				  equipment_group, current_rank, start_rank, slot_count, usage_days, status, slot_type,
				  created_at, last_check_date)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 RETURNING id`),
				nullableInt64(unit.SlotID),
				unit.CustomerID,
				unit.CustomerName,
				unit.Distributor,
				unit.WorkGroup,
				unit.Keyword,
				unit.LinkURL,
				unit.Memo,
				unit.EquipmentGroup,
				nullableInt(unit.CurrentRank),
				nullableInt(unit.StartRank),
				unit.SlotCount,
				unit.UsageDays,
				string(unit.Status),
				unit.SlotType,
				unit.CreatedAt.Unix(),
				nullableUnix(unit.LastCheckDate),
			).Scan(&unit.ID)
			if err != nil {
				return fmt.Errorf("failed to insert slot status: %w", err)
			}
			inserted = append(inserted, unit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// ListSlotStatuses returns allocated units newest first, optionally for one customer.
// Each unit carries the creation time of its grant when the grant still exists.
func (s *Store) ListSlotStatuses(ctx context.Context, customerID string) ([]types.SlotStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+slotStatusColumns+` FROM slot_status st
		 LEFT JOIN slots g ON g.id = st.slot_id
		 WHERE (? = '' OR st.customer_id = ?)
		 ORDER BY st.created_at DESC, st.id DESC`),
		customerID, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query slot status: %w", err)
	}
	defer closeRows(rows)

	units := []types.SlotStatus{}
	for rows.Next() {
		unit, err := scanSlotStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot status: %w", err)
		}
		units = append(units, *unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot status: %w", err)
	}
	return units, nil
}

// GetSlotStatus returns one allocated unit
func (s *Store) GetSlotStatus(ctx context.Context, id int64) (*types.SlotStatus, error) {
	unit, err := scanSlotStatus(s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+slotStatusColumns+` FROM slot_status st
		 LEFT JOIN slots g ON g.id = st.slot_id
		 WHERE st.id = ?`),
		id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("slot status %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query slot status: %w", err)
	}
	return unit, nil
}

// DeleteSlotStatus removes one allocated unit
func (s *Store) DeleteSlotStatus(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM slot_status WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete slot status %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("slot status %d: %w", id, ErrNotFound)
	}
	return nil
}

// RankedUnit is a slot-status row touched by a rank update
type RankedUnit struct {
	ID        int64
	StartRank *int
}

// ApplyRank writes rank as current_rank on every slot-status row for keyword and link.
// start_rank is only set where it is still NULL, so an existing baseline never changes.
func (s *Store) ApplyRank(ctx context.Context, keyword, linkURL string, rank int, checkedAt time.Time) ([]RankedUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`UPDATE slot_status
		 SET current_rank = ?, start_rank = COALESCE(start_rank, ?), last_check_date = ?
		 WHERE keyword = ? AND link_url = ?
		 RETURNING id, start_rank`),
		rank, rank, checkedAt.Unix(), keyword, linkURL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update slot status rank: %w", err)
	}
	defer closeRows(rows)

	units := []RankedUnit{}
	for rows.Next() {
		var unit RankedUnit
		var startRank sql.NullInt64
		if err := rows.Scan(&unit.ID, &startRank); err != nil {
			return nil, fmt.Errorf("failed to scan ranked unit: %w", err)
		}
		unit.StartRank = intPtr(startRank)
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranked units: %w", err)
	}
	return units, nil
}
