package records

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers so stored documents stay readable and
	// compatible with existing exports.
	decimal.MarshalJSONWithoutQuotes = true
}

// DateLayout is the layout of calendar-date fields such as admissionDate.
const DateLayout = "2006-01-02"

// StudentStatus is the lifecycle state of a student.
type StudentStatus string

const (
	StudentActive      StudentStatus = "active"
	StudentLeft        StudentStatus = "left"
	StudentPassedOut   StudentStatus = "passed_out"
	StudentTransferred StudentStatus = "transferred"
)

func (s StudentStatus) valid() bool {
	switch s {
	case StudentActive, StudentLeft, StudentPassedOut, StudentTransferred:
		return true
	}
	return false
}

// Student is an enrolled (or formerly enrolled) student. Students are never
// physically removed.
type Student struct {
	ID            int64           `json:"id"`
	StudentID     string          `json:"studentId"`
	Name          string          `json:"name"`
	FatherName    string          `json:"fatherName,omitempty"`
	ClassID       int64           `json:"classId"`
	Section       string          `json:"section,omitempty"`
	RollNumber    string          `json:"rollNumber,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Address       string          `json:"address,omitempty"`
	AdmissionDate string          `json:"admissionDate,omitempty"`
	MonthlyFee    decimal.Decimal `json:"monthlyFee"`
	HasTransport  bool            `json:"hasTransport"`
	TransportFee  decimal.Decimal `json:"transportFee"`
	Status        StudentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// TeacherStatus is the lifecycle state of a teacher.
type TeacherStatus string

const (
	TeacherActive   TeacherStatus = "active"
	TeacherResigned TeacherStatus = "resigned"
)

func (s TeacherStatus) valid() bool {
	return s == TeacherActive || s == TeacherResigned
}

// Teacher is a member of staff paid through salary payments.
type Teacher struct {
	ID          int64           `json:"id"`
	TeacherID   string          `json:"teacherId"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone,omitempty"`
	Subject     string          `json:"subject,omitempty"`
	JoiningDate string          `json:"joiningDate,omitempty"`
	BasicSalary decimal.Decimal `json:"basicSalary"`
	Status      TeacherStatus   `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// FeeStatus is derived from the amounts on a fee record.
type FeeStatus string

const (
	FeePaid    FeeStatus = "paid"
	FeePartial FeeStatus = "partial"
	FeeUnpaid  FeeStatus = "unpaid"
)

// FeeItem is an additional charge drawn from a fee head.
type FeeItem struct {
	FeeHeadID int64           `json:"feeHeadId"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// FeeRecord is one fee collection for a student and month.
//
// NetPayable, BalanceDue and Status are computed on save; callers only
// supply the components and AmountPaid.
type FeeRecord struct {
	ID            int64           `json:"id"`
	ReceiptNumber string          `json:"receiptNumber"`
	StudentID     int64           `json:"studentId"`
	FeeMonth      int             `json:"feeMonth"`
	FeeYear       int             `json:"feeYear"`
	MonthlyFee    decimal.Decimal `json:"monthlyFee"`
	TransportFee  decimal.Decimal `json:"transportFee"`
	Items         []FeeItem       `json:"items,omitempty"`
	LateFee       decimal.Decimal `json:"lateFee"`
	Discount      decimal.Decimal `json:"discount"`
	NetPayable    decimal.Decimal `json:"netPayable"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	BalanceDue    decimal.Decimal `json:"balanceDue"`
	Status        FeeStatus       `json:"status"`
	PaymentDate   string          `json:"paymentDate,omitempty"`
	PaymentMode   string          `json:"paymentMode,omitempty"`
	ReceivedBy    string          `json:"receivedBy,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// SalaryPayment is one salary disbursement for a teacher and month.
type SalaryPayment struct {
	ID          int64           `json:"id"`
	PaymentID   string          `json:"paymentId"`
	TeacherID   int64           `json:"teacherId"`
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	BasicSalary decimal.Decimal `json:"basicSalary"`
	Allowances  decimal.Decimal `json:"allowances"`
	Deductions  decimal.Decimal `json:"deductions"`
	NetSalary   decimal.Decimal `json:"netSalary"`
	PaymentDate string          `json:"paymentDate,omitempty"`
	PaymentMode string          `json:"paymentMode,omitempty"`
	Remarks     string          `json:"remarks,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Role is a user's permission level.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
)

func (r Role) valid() bool {
	return r == RoleAdmin || r == RoleAccountant || r == RoleViewer
}

// User is an operator account. PasswordHash is "salt:derivedHash" in hex.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	FullName     string     `json:"fullName,omitempty"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"passwordHash"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Session is the single-slot record of the authenticated user.
type Session struct {
	UserID   int64     `json:"userId"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Token    string    `json:"token"`
	LoginAt  time.Time `json:"loginAt"`
}

// Class is a grade level. DisplayOrder drives promotion.
type Class struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	DisplayOrder int             `json:"displayOrder"`
	MonthlyFee   decimal.Decimal `json:"monthlyFee"`
	IsActive     bool            `json:"isActive"`
}

// FeeHead is a named recurring or one-off charge.
type FeeHead struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency string          `json:"frequency,omitempty"`
	IsActive  bool            `json:"isActive"`
}

// AcademicYear is a school session. At most one is current.
type AcademicYear struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	IsCurrent bool   `json:"isCurrent"`
}

// AuditAction names what an audit entry records.
type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionUpdate  AuditAction = "update"
	ActionDelete  AuditAction = "delete"
	ActionLogin   AuditAction = "login"
	ActionLogout  AuditAction = "logout"
	ActionPromote AuditAction = "promote"
	ActionBackup  AuditAction = "backup"
)

// AuditLog is one entry of the rolling activity feed.
type AuditLog struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	UserID     int64       `json:"userId"`
	Username   string      `json:"username"`
	Action     AuditAction `json:"action"`
	EntityType string      `json:"entityType"`
	EntityID   string      `json:"entityId"`
	Details    string      `json:"details"`
}

// SchoolInfo holds the school's letterhead details.
type SchoolInfo struct {
	Name          string `json:"name"`
	Address       string `json:"address,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	PrincipalName string `json:"principalName,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

// GoogleAPIConfig holds spreadsheet-sync settings consumed by an external
// collaborator.
type GoogleAPIConfig struct {
	ClientID      string `json:"clientId,omitempty"`
	APIKey        string `json:"apiKey,omitempty"`
	SpreadsheetID string `json:"spreadsheetId,omitempty"`
	Enabled       bool   `json:"enabled"`
}

// BackupFile records a file backup taken by the backup engine.
type BackupFile struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

func validMonth(m int) bool { return m >= 1 && m <= 12 }

func validDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", s)
	}
	return nil
}
