// Package api defines the core data structures and store interfaces for homeledger.
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes income occurrences from expense occurrences.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Frequency is the recurrence cadence of a rule.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyIrregular Frequency = "irregular"
)

// Status is the lifecycle state of an occurrence.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSkipped   Status = "skipped"
	StatusSnoozed   Status = "snoozed"
	StatusArchived  Status = "archived"
)

// ExpenseStatus records whether a realized expense was paid on time.
type ExpenseStatus string

const (
	ExpensePaid ExpenseStatus = "paid"
	ExpenseLate ExpenseStatus = "late"
)

// ExpenseType tells recurring-rule expenses apart from one-off entries.
type ExpenseType string

const (
	ExpenseRecurring ExpenseType = "recurring"
	ExpenseOneTime   ExpenseType = "one-time"
)

// IncomeRule describes an expected recurring income source.
type IncomeRule struct {
	ID          string          `json:"id"`
	HouseholdID string          `json:"household_id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Frequency   Frequency       `json:"frequency"`
	// NextPayday anchors the payday sequence. Nil for irregular income.
	NextPayday *time.Time `json:"next_payday,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Ref returns the tagged reference used by occurrences generated from r.
func (r IncomeRule) Ref() RuleRef {
	return RuleRef{Kind: KindIncome, ID: r.ID}
}

// ExpenseRule describes an expected recurring bill.
type ExpenseRule struct {
	ID             string          `json:"id"`
	HouseholdID    string          `json:"household_id"`
	Name           string          `json:"name"`
	Category       Category        `json:"category"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	// DueDay is the day of month the bill is due, 1-31.
	DueDay    int       `json:"due_day"`
	Frequency Frequency `json:"frequency"`
	Active    bool      `json:"active"`
	// AutoPrompt excludes the rule from backfill when false.
	AutoPrompt bool      `json:"auto_prompt"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ref returns the tagged reference used by occurrences generated from r.
func (r ExpenseRule) Ref() RuleRef {
	return RuleRef{Kind: KindExpense, ID: r.ID}
}

// RuleRef points an occurrence at the rule that produced it.
type RuleRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Occurrence is one expected instance of a rule awaiting user confirmation.
type Occurrence struct {
	ID          string  `json:"id"`
	HouseholdID string  `json:"household_id"`
	Rule        RuleRef `json:"rule"`
	// Period is the dedup bucket: YYYY-MM-DD for income, YYYY-MM for expenses.
	Period string `json:"period"`
	// Name and ExpectedAmount are copied from the rule at creation time.
	Name           string          `json:"name"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	DueDate        time.Time       `json:"due_date"`
	Status         Status          `json:"status"`
	SnoozeUntil    *time.Time      `json:"snooze_until,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Kind returns the kind of the originating rule.
func (o Occurrence) Kind() Kind {
	return o.Rule.Kind
}

// Expense is a realized money-out event.
type Expense struct {
	ID          string          `json:"id"`
	HouseholdID string          `json:"household_id"`
	RuleID      string          `json:"rule_id,omitempty"`
	Name        string          `json:"name"`
	Category    Category        `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	PaidDate    time.Time       `json:"paid_date"`
	Status      ExpenseStatus   `json:"status"`
	Type        ExpenseType     `json:"type"`
	Notes       string          `json:"notes,omitempty"`
	ReceiptText string          `json:"receipt_text,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RuleFilter selects rules. Empty fields match everything.
type RuleFilter struct {
	HouseholdID string
	ActiveOnly  bool
}

// OccurrenceFilter selects occurrences. Zero-valued fields are ignored.
type OccurrenceFilter struct {
	HouseholdID string
	Kind        Kind
	Rule        *RuleRef
	Statuses    []Status
	// DueBefore keeps occurrences due on a calendar day before DueBefore's
	// date. The time of day is ignored.
	DueBefore time.Time
	// CreatedFrom and CreatedBefore bound CreatedAt as a half-open range.
	CreatedFrom   time.Time
	CreatedBefore time.Time
}

// ExpenseFilter selects realized expenses. Zero-valued fields are ignored.
type ExpenseFilter struct {
	HouseholdID string
	Category    Category
	RuleID      string
	// PaidFrom and PaidBefore bound PaidDate as a half-open range.
	PaidFrom   time.Time
	PaidBefore time.Time
}

// OccurrenceUpdate is a conditional single-row update. It is applied only when
// the stored status is one of From.
type OccurrenceUpdate struct {
	ID          string
	HouseholdID string
	From        []Status
	// Status is the new status. Empty keeps the stored one.
	Status         Status
	SnoozeUntil    *time.Time
	ExpectedAmount *decimal.Decimal
	UpdatedAt      time.Time
	// Expense, when set, is inserted atomically with the update.
	Expense *Expense
	// Balance, when set, is applied to the household balance atomically
	// with the update.
	Balance *BalanceChange
}

// ExpenseUpdate edits the user-editable fields of a realized expense. Nil
// fields are left unchanged.
type ExpenseUpdate struct {
	ID          string
	HouseholdID string
	Name        *string
	Category    *Category
	Amount      *decimal.Decimal
	Notes       *string
	UpdatedAt   time.Time
}

// BalanceChangeType records what moved the balance.
type BalanceChangeType string

const (
	BalanceIncome  BalanceChangeType = "income"
	BalanceExpense BalanceChangeType = "expense"
	BalanceManual  BalanceChangeType = "manual_adjustment"
)

// Balance is a household's running account balance.
type Balance struct {
	HouseholdID string          `json:"household_id"`
	Amount      decimal.Decimal `json:"amount"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BalanceEntry is one change in a household's balance history. Balance is
// the amount after the change.
type BalanceEntry struct {
	ID           string            `json:"id"`
	HouseholdID  string            `json:"household_id"`
	Balance      decimal.Decimal   `json:"balance"`
	Change       decimal.Decimal   `json:"change"`
	Reason       string            `json:"reason"`
	Type         BalanceChangeType `json:"type"`
	OccurrenceID string            `json:"occurrence_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// BalanceChange moves a household balance. A household with no balance yet
// starts from zero.
type BalanceChange struct {
	HouseholdID string
	// Delta is added to the current balance. Ignored when Set is not nil.
	Delta decimal.Decimal
	// Set replaces the balance; the history entry records the difference.
	Set          *decimal.Decimal
	Type         BalanceChangeType
	Reason       string
	OccurrenceID string
	At           time.Time
}

// BalanceFilter selects balance history entries. Zero-valued fields are ignored.
type BalanceFilter struct {
	HouseholdID string
	// From and Before bound CreatedAt as a half-open range.
	From   time.Time
	Before time.Time
}

// RuleStore persists income and expense rules.
type RuleStore interface {
	CreateIncomeRule(ctx context.Context, rule *IncomeRule) error
	UpdateIncomeRule(ctx context.Context, rule *IncomeRule) error
	GetIncomeRule(ctx context.Context, householdID, id string) (*IncomeRule, error)
	ListIncomeRules(ctx context.Context, filter RuleFilter) ([]IncomeRule, error)

	CreateExpenseRule(ctx context.Context, rule *ExpenseRule) error
	UpdateExpenseRule(ctx context.Context, rule *ExpenseRule) error
	GetExpenseRule(ctx context.Context, householdID, id string) (*ExpenseRule, error)
	ListExpenseRules(ctx context.Context, filter RuleFilter) ([]ExpenseRule, error)
}

// OccurrenceStore persists occurrences. InsertOccurrenceIfAbsent is the only
// way occurrences are created: it reports false when one already exists for
// the same rule and period, whatever its status.
type OccurrenceStore interface {
	InsertOccurrenceIfAbsent(ctx context.Context, occ *Occurrence) (bool, error)
	GetOccurrence(ctx context.Context, householdID, id string) (*Occurrence, error)
	ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]Occurrence, error)
	UpdateOccurrence(ctx context.Context, update OccurrenceUpdate) (bool, error)
	// ArchiveOccurrences moves confirmed and skipped occurrences last updated
	// before cutoff to archived and returns how many changed.
	ArchiveOccurrences(ctx context.Context, cutoff, now time.Time) (int, error)
}

// ExpenseStore persists realized expenses.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *Expense) error
	GetExpense(ctx context.Context, householdID, id string) (*Expense, error)
	// UpdateExpense applies the non-nil fields of update and returns the
	// stored result.
	UpdateExpense(ctx context.Context, update ExpenseUpdate) (*Expense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]Expense, error)
}

// BalanceStore persists household balances and their history. Every change
// writes the new balance and its history entry together.
type BalanceStore interface {
	// GetBalance returns ErrNotFound for a household whose balance was never set.
	GetBalance(ctx context.Context, householdID string) (*Balance, error)
	ApplyBalanceChange(ctx context.Context, change BalanceChange) (*BalanceEntry, error)
	// ListBalanceHistory returns entries oldest first.
	ListBalanceHistory(ctx context.Context, filter BalanceFilter) ([]BalanceEntry, error)
}

// Store is the full persistence surface used by homeledger.
type Store interface {
	RuleStore
	OccurrenceStore
	ExpenseStore
	BalanceStore
}

// Severity orders notifications from least to most urgent.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a sortable weight for s; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// NotificationType groups notifications by what triggered them.
type NotificationType string

const (
	NotifyPayday   NotificationType = "payday"
	NotifyBill     NotificationType = "bill"
	NotifyReminder NotificationType = "reminder"
	NotifySummary  NotificationType = "summary"
)

// Notification is a user-facing message produced by background jobs.
type Notification struct {
	ID          string           `json:"id"`
	HouseholdID string           `json:"household_id"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type"`
	Severity    Severity         `json:"severity"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Notifier delivers notifications. Delivery failures never roll back the
// work that produced the notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
