// Package slots manages capacity grants and the keyword units allocated from them.
package slots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/metrics"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// ErrInsufficientSlots matches any InsufficientSlotsError
var ErrInsufficientSlots = errors.New("insufficient slots")

// InsufficientSlotsError reports an allocation larger than the customer's free capacity
type InsufficientSlotsError struct {
	Available int
	Requested int
}

func (e *InsufficientSlotsError) Error() string {
	return fmt.Sprintf("insufficient slots: available %d, requested %d", e.Available, e.Requested)
}

// Is lets errors.Is match ErrInsufficientSlots
func (e *InsufficientSlotsError) Is(target error) bool {
	return target == ErrInsufficientSlots
}

// Store is the persistence the service needs
type Store interface {
	ExpireDueSlots(ctx context.Context) (int64, error)
	CreateSlot(ctx context.Context, slot *types.Slot) error
	ListSlots(ctx context.Context, customerID string) ([]types.Slot, error)
	ActiveSlots(ctx context.Context, customerID string) ([]types.Slot, error)
	UsedUnits(ctx context.Context, customerID string) (int, error)
	UsedUnitsByGrant(ctx context.Context, customerID string) (map[int64]int, error)
	InsertSlotStatuses(ctx context.Context, units []types.SlotStatus) ([]types.SlotStatus, error)
	ListSlotStatuses(ctx context.Context, customerID string) ([]types.SlotStatus, error)
	DeleteSlotStatus(ctx context.Context, id int64) error
	EnqueueKeyword(ctx context.Context, slotType, keyword, linkURL string) (*types.Keyword, bool, error)
}

// Notifier announces newly queued keyword jobs
type Notifier interface {
	Notify(ctx context.Context) error
}

// Service implements slot management
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewService creates a slot service. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Expire persists the expired state of every grant whose period has elapsed
func (s *Service) Expire(ctx context.Context) error {
	expired, err := s.store.ExpireDueSlots(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		metrics.SlotsExpired.Add(float64(expired))
		logrus.WithField("count", expired).Info("Marked slots as expired")
	}
	return nil
}

// CreateGrant records a new capacity grant
func (s *Service) CreateGrant(ctx context.Context, req types.CreateSlotRequest) (*types.Slot, error) {
	slot := &types.Slot{
		CustomerID:    strings.TrimSpace(req.CustomerID),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		SlotType:      req.SlotType,
		SlotCount:     req.SlotCount,
		PaymentAmount: req.PaymentAmount,
		UsageDays:     req.UsageDays,
		Memo:          req.Memo,
	}
	if err := s.store.CreateSlot(ctx, slot); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"slot_id":     slot.ID,
		"customer_id": slot.CustomerID,
		"slot_count":  slot.SlotCount,
		"usage_days":  slot.UsageDays,
	}).Info("Created slot grant")
	return slot, nil
}

// Allocate draws req.SlotCount one-unit rows from the customer's active grants, longest
// remaining usage first, and queues a rank check for the keyword. It fails with an
// InsufficientSlotsError when the customer's free capacity is smaller than requested.
func (s *Service) Allocate(ctx context.Context, req types.AllocateSlotsRequest) (*types.AllocateSlotsResponse, error) {
	if err := s.Expire(ctx); err != nil {
		return nil, err
	}

	grants, err := s.store.ActiveSlots(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	used, err := s.store.UsedUnits(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, g := range grants {
		total += g.SlotCount
	}
	available := max(0, total-used)
	if req.SlotCount > available {
		return nil, &InsufficientSlotsError{Available: available, Requested: req.SlotCount}
	}

	byGrant, err := s.store.UsedUnitsByGrant(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	units := make([]types.SlotStatus, 0, req.SlotCount)
	remaining := req.SlotCount
	for _, g := range grants {
		if remaining == 0 {
			break
		}
		n := min(remaining, max(0, g.SlotCount-byGrant[g.ID]))
		for i := 0; i < n; i++ {
			grantID := g.ID
			units = append(units, types.SlotStatus{
				SlotID:         &grantID,
				CustomerID:     req.CustomerID,
				CustomerName:   req.CustomerName,
				Distributor:    req.Distributor,
				WorkGroup:      req.WorkGroup,
				Keyword:        req.Keyword,
				LinkURL:        req.LinkURL,
				Memo:           req.Memo,
				EquipmentGroup: req.EquipmentGroup,
				SlotCount:      1,
				UsageDays:      g.UsageDays,
				SlotType:       req.SlotType,
			})
		}
		remaining -= n
	}
	if remaining > 0 {
		return nil, &InsufficientSlotsError{Available: req.SlotCount - remaining, Requested: req.SlotCount}
	}

	inserted, err := s.store.InsertSlotStatuses(ctx, units)
	if err != nil {
		return nil, err
	}
	metrics.SlotsAllocated.Add(float64(len(inserted)))

	log := logrus.WithFields(logrus.Fields{
		"customer_id": req.CustomerID,
		"keyword":     req.Keyword,
		"allocated":   len(inserted),
	})
	log.Info("Allocated slots")

	s.enqueue(ctx, req)

	return &types.AllocateSlotsResponse{
		Success:        true,
		Data:           inserted,
		Message:        fmt.Sprintf("%d slots allocated", len(inserted)),
		AllocatedCount: len(inserted),
		RequestedCount: req.SlotCount,
	}, nil
}

// enqueue queues a rank check for a fresh allocation. Failures are logged only.
func (s *Service) enqueue(ctx context.Context, req types.AllocateSlotsRequest) {
	log := logrus.WithFields(logrus.Fields{"keyword": req.Keyword, "link_url": req.LinkURL})

	job, created, err := s.store.EnqueueKeyword(ctx, req.SlotType, req.Keyword, req.LinkURL)
	if err != nil {
		log.WithError(err).Warn("Failed to queue rank check for allocated slots")
		return
	}
	if !created {
		log.WithField("job_id", job.ID).Debug("Rank check already pending")
		return
	}

	log.WithField("job_id", job.ID).Info("Queued rank check")
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx); err != nil {
			log.WithError(err).Warn("Failed to notify rank workers")
		}
	}
}

// Release removes one allocated unit
func (s *Service) Release(ctx context.Context, id int64) error {
	if err := s.store.DeleteSlotStatus(ctx, id); err != nil {
		return err
	}
	logrus.WithField("slot_status_id", id).Info("Released slot unit")
	return nil
}

// Units lists allocated units with remaining time, optionally for one customer
func (s *Service) Units(ctx context.Context, customerID string) ([]types.SlotStatusView, error) {
	units, err := s.store.ListSlotStatuses(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return ProjectUnits(units, s.now()), nil
}

// Grants lists grants with usage and remaining time after applying lazy expiry.
// search filters on customer id or name.
func (s *Service) Grants(ctx context.Context, customerID, search string) ([]types.SlotView, types.SlotStats, error) {
	if err := s.Expire(ctx); err != nil {
		return nil, types.SlotStats{}, err
	}

	grants, err := s.store.ListSlots(ctx, customerID)
	if err != nil {
		return nil, types.SlotStats{}, err
	}

	used := make(map[int64]int)
	seen := make(map[string]bool)
	for _, g := range grants {
		if seen[g.CustomerID] {
			continue
		}
		seen[g.CustomerID] = true
		byGrant, err := s.store.UsedUnitsByGrant(ctx, g.CustomerID)
		if err != nil {
			return nil, types.SlotStats{}, err
		}
		for id, n := range byGrant {
			used[id] = n
		}
	}

	views := FilterGrants(ProjectGrants(grants, used, s.now()), search)
	return views, Totals(views), nil
}

// Summary returns one customer's capacity, usage and allocated units
func (s *Service) Summary(ctx context.Context, customerID string) (*types.CustomerSummary, types.SlotStats, error) {
	if err := s.Expire(ctx); err != nil {
		return nil, types.SlotStats{}, err
	}

	grants, err := s.store.ListSlots(ctx, customerID)
	if err != nil {
		return nil, types.SlotStats{}, err
	}
	used, err := s.store.UsedUnits(ctx, customerID)
	if err != nil {
		return nil, types.SlotStats{}, err
	}
	units, err := s.Units(ctx, customerID)
	if err != nil {
		return nil, types.SlotStats{}, err
	}

	summary := &types.CustomerSummary{
		CustomerID:     customerID,
		SlotType:       types.DefaultSlotType,
		Status:         types.SlotExpired,
		UsedSlots:      used,
		SlotStatusData: units,
	}
	for _, g := range grants {
		summary.TotalPaymentAmount += g.PaymentAmount
		if g.Status == types.SlotActive {
			summary.SlotCount += g.SlotCount
			summary.Status = types.SlotActive
		}
	}
	if len(grants) > 0 {
		// grants are newest first
		latest := grants[0]
		summary.CustomerName = latest.CustomerName
		summary.SlotType = latest.SlotType
		summary.RegistrationDate, summary.ExpiryDate = dates(latest.CreatedAt, latest.UsageDays)
	}
	summary.RemainingSlots = max(0, summary.SlotCount-used)

	stats := types.SlotStats{
		TotalSlots:     summary.SlotCount,
		UsedSlots:      used,
		RemainingSlots: summary.RemainingSlots,
		TotalCustomers: 1,
	}
	return summary, stats, nil
}
