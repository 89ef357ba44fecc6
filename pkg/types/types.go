package types

import "time"

// Keyword is a pending rank-check job in the keyword registry
type Keyword struct {
	ID            int64      `json:"id"`
	SlotType      string     `json:"slot_type"`
	Keyword       string     `json:"keyword"`
	LinkURL       string     `json:"link_url"`
	SlotCount     int        `json:"slot_count"`
	CurrentRank   *int       `json:"current_rank"`
	LastCheckDate *time.Time `json:"last_check_date"`
	Attempts      int        `json:"attempts"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EnqueueKeywordRequest registers a keyword for rank checking
type EnqueueKeywordRequest struct {
	Keyword  string `json:"keyword" binding:"required"`
	LinkURL  string `json:"link_url" binding:"required"`
	SlotType string `json:"slot_type,omitempty"`
}

// SlotStatusValue is the lifecycle state of a capacity grant or an allocated unit
type SlotStatusValue string

const (
	SlotActive  SlotStatusValue = "active"
	SlotExpired SlotStatusValue = "expired"
)

// DefaultSlotType is used when a request omits slot_type
const DefaultSlotType = "coupang"

// Slot is a capacity grant entitling a customer to a number of tracked keywords
type Slot struct {
	ID            int64           `json:"id"`
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	SlotType      string          `json:"slot_type"`
	SlotCount     int             `json:"slot_count"`
	PaymentAmount int64           `json:"payment_amount"`
	UsageDays     int             `json:"usage_days"`
	Memo          string          `json:"memo"`
	Status        SlotStatusValue `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreateSlotRequest creates a capacity grant
type CreateSlotRequest struct {
	CustomerID    string `json:"customer_id" binding:"required"`
	CustomerName  string `json:"customer_name" binding:"required"`
	SlotCount     int    `json:"slot_count" binding:"required,min=1"`
	UsageDays     int    `json:"usage_days" binding:"required,min=1"`
	PaymentAmount int64  `json:"payment_amount,omitempty"`
	SlotType      string `json:"slot_type,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

// SlotStatus is one allocated unit of a grant bound to a keyword and product link
type SlotStatus struct {
	ID             int64           `json:"id"`
	SlotID         *int64          `json:"slot_id"`
	CustomerID     string          `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	Distributor    string          `json:"distributor"`
	WorkGroup      string          `json:"work_group"`
	Keyword        string          `json:"keyword"`
	LinkURL        string          `json:"link_url"`
	Memo           string          `json:"memo"`
	EquipmentGroup string          `json:"equipment_group"`
	CurrentRank    *int            `json:"current_rank"`
	StartRank      *int            `json:"start_rank"`
	SlotCount      int             `json:"slot_count"`
	UsageDays      int             `json:"usage_days"`
	Status         SlotStatusValue `json:"status"`
	SlotType       string          `json:"slot_type"`
	CreatedAt      time.Time       `json:"created_at"`
	LastCheckDate  *time.Time      `json:"last_check_date"`

	// GrantCreatedAt is the creation time of the grant this unit was drawn from, when known
	GrantCreatedAt *time.Time `json:"-"`
}

// AllocateSlotsRequest allocates units from a customer's grants to a keyword
type AllocateSlotsRequest struct {
	CustomerID     string `json:"customer_id" binding:"required"`
	CustomerName   string `json:"customer_name" binding:"required"`
	Keyword        string `json:"keyword" binding:"required"`
	LinkURL        string `json:"link_url" binding:"required"`
	SlotCount      int    `json:"slot_count" binding:"required,min=1"`
	Distributor    string `json:"distributor,omitempty"`
	WorkGroup      string `json:"work_group,omitempty"`
	Memo           string `json:"memo,omitempty"`
	EquipmentGroup string `json:"equipment_group,omitempty"`
	SlotType       string `json:"slot_type,omitempty"`
}

// AllocateSlotsResponse reports the units created by an allocation
type AllocateSlotsResponse struct {
	Success        bool         `json:"success"`
	Data           []SlotStatus `json:"data"`
	Message        string       `json:"message"`
	AllocatedCount int          `json:"allocatedCount"`
	RequestedCount int          `json:"requestedCount"`
}

// Remaining is the time left on a usage period, floored to whole units
type Remaining struct {
	RemainingDays       int    `json:"remaining_days"`
	RemainingHours      int    `json:"remaining_hours"`
	RemainingMinutes    int    `json:"remaining_minutes"`
	RemainingTimeString string `json:"remaining_time_string"`
}

// SlotStatusView is an allocated unit with its remaining time. ID is the position in
// the listing and DBID the row id.
type SlotStatusView struct {
	SlotStatus
	ID   int   `json:"id"`
	DBID int64 `json:"db_id"`
	Remaining
	RegistrationDate string `json:"registration_date"`
	ExpiryDate       string `json:"expiry_date"`
}

// SlotView is a capacity grant with usage and remaining time
type SlotView struct {
	Slot
	UsedSlots      int `json:"used_slots"`
	RemainingSlots int `json:"remaining_slots"`
	Remaining
	RegistrationDate string `json:"registration_date"`
	ExpiryDate       string `json:"expiry_date"`
}

// SlotStats totals a grant listing
type SlotStats struct {
	TotalSlots     int `json:"total_slots"`
	UsedSlots      int `json:"used_slots"`
	RemainingSlots int `json:"remaining_slots"`
	TotalCustomers int `json:"total_customers"`
}

// CustomerSummary is one customer's capacity and allocated units
type CustomerSummary struct {
	CustomerID         string           `json:"customer_id"`
	CustomerName       string           `json:"customer_name"`
	SlotType           string           `json:"slot_type"`
	SlotCount          int              `json:"slot_count"`
	UsedSlots          int              `json:"used_slots"`
	RemainingSlots     int              `json:"remaining_slots"`
	TotalPaymentAmount int64            `json:"total_payment_amount"`
	RegistrationDate   string           `json:"registration_date"`
	ExpiryDate         string           `json:"expiry_date"`
	Status             SlotStatusValue  `json:"status"`
	SlotStatusData     []SlotStatusView `json:"slot_status_data"`
}

// SlotListResponse lists grants
type SlotListResponse struct {
	Success bool       `json:"success"`
	Data    []SlotView `json:"data"`
	Stats   SlotStats  `json:"stats"`
}

// CustomerSummaryResponse wraps a single customer summary
type CustomerSummaryResponse struct {
	Success bool              `json:"success"`
	Data    []CustomerSummary `json:"data"`
	Stats   SlotStats         `json:"stats"`
}

// SlotStatusListResponse lists allocated units
type SlotStatusListResponse struct {
	Success bool             `json:"success"`
	Data    []SlotStatusView `json:"data"`
}

// SlotResponse returns one grant
type SlotResponse struct {
	Success bool `json:"success"`
	Data    Slot `json:"data"`
}

// KeywordResponse returns one job
type KeywordResponse struct {
	Success bool    `json:"success"`
	Data    Keyword `json:"data"`
	Created bool    `json:"created"`
}

// RankHistoryResponse lists history rows
type RankHistoryResponse struct {
	Success bool          `json:"success"`
	Data    []RankHistory `json:"data"`
}

// MessageResponse is a success acknowledgement
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RankHistory is an append-only record of a completed rank check
type RankHistory struct {
	ID           int64     `json:"id"`
	SlotStatusID int64     `json:"slot_status_id"`
	Keyword      string    `json:"keyword"`
	LinkURL      string    `json:"link_url"`
	CurrentRank  *int      `json:"current_rank"`
	StartRank    *int      `json:"start_rank"`
	CheckDate    time.Time `json:"check_date"`
}

// CheckStatus is the outcome of a single keyword rank check
type CheckStatus string

const (
	CheckFound    CheckStatus = "FOUND"
	CheckNotFound CheckStatus = "NOT_FOUND"
	CheckFailed   CheckStatus = "FAILED"
)

// CheckResult is the resolver's report for one keyword job
type CheckResult struct {
	ID                 int64       `json:"id"`
	Keyword            string      `json:"keyword"`
	ProductID          string      `json:"productId"`
	URL                string      `json:"url"`
	Rank               *int        `json:"rank"`
	TotalProductsFound int         `json:"totalProductsFound"`
	PagesChecked       int         `json:"pagesChecked"`
	Status             CheckStatus `json:"status"`
	Error              string      `json:"error,omitempty"`
}

// UpdateResultsRequest carries a batch of check results back to the registry
type UpdateResultsRequest struct {
	Results []CheckResult `json:"results"`
}

// UpdateStats counts applied and rejected results
type UpdateStats struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// UpdateResultsResponse is the registry's reply to an update-results call
type UpdateResultsResponse struct {
	Success bool        `json:"success"`
	Stats   UpdateStats `json:"stats"`
	Error   string      `json:"error,omitempty"`
}

// KeywordsResponse lists pending jobs
type KeywordsResponse struct {
	Success bool      `json:"success"`
	Data    []Keyword `json:"data"`
	Error   string    `json:"error,omitempty"`
}

// RunStatus is the lifecycle state of a resolver run
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// RunReport summarises one resolver batch run
type RunReport struct {
	RunID        string        `json:"run_id"`
	Status       RunStatus     `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Found        int           `json:"found"`
	Total        int           `json:"total"`
	PagesChecked int           `json:"pages_checked"`
	Results      []CheckResult `json:"results"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Uptime      string    `json:"uptime"`
	PendingJobs int       `json:"pending_jobs"`
}
