package fees

import "time"

// Assignment statuses
const (
	StatusPending = "pending"
	StatusPartial = "partial"
	StatusPaid    = "paid"
	StatusWaived  = "waived"
)

// Payment statuses
const (
	PaymentPending = "pending"
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

const MethodOnline = "online"

// ============================
// 🔷 GORM Models
type FeeStructure struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SchoolID  uint      `gorm:"not null;index" json:"school_id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name"`
	Amount    float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency  string    `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	Frequency string    `gorm:"type:varchar(20);not null;default:'once'" json:"frequency"`
	DueDay    *int      `json:"due_day"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedBy uint      `json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type FeeAssignment struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SchoolID       uint       `gorm:"not null;index" json:"school_id"`
	FeeStructureID uint       `gorm:"not null;uniqueIndex:idx_fee_student" json:"fee_structure_id"`
	StudentName    string     `gorm:"type:varchar(200);not null" json:"student_name"`
	StudentRef     string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_fee_student" json:"student_ref"`
	ContactEmail   string     `gorm:"type:varchar(150)" json:"contact_email"`
	Amount         float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Discount       float64    `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`
	PaidAmount     float64    `gorm:"type:decimal(12,2);not null;default:0" json:"paid_amount"`
	DueDate        *time.Time `json:"due_date"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	FeeStructure *FeeStructure `gorm:"foreignKey:FeeStructureID" json:"fee_structure,omitempty"`
}

// Due is what is owed after the discount.
func (a *FeeAssignment) Due() float64 {
	due := a.Amount - a.Discount
	if due < 0 {
		return 0
	}
	return due
}

type FeePayment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	SchoolID        uint       `gorm:"not null;index" json:"school_id"`
	FeeAssignmentID uint       `gorm:"not null;index" json:"fee_assignment_id"`
	Amount          float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method          string     `gorm:"type:varchar(30);not null" json:"method"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	OrderID         *string    `gorm:"type:varchar(100);uniqueIndex" json:"order_id"`
	PaymentID       *string    `gorm:"type:varchar(100)" json:"payment_id"`
	Reference       string     `gorm:"type:varchar(100)" json:"reference"`
	PaidAt          *time.Time `json:"paid_at"`
	RecordedBy      uint       `json:"recorded_by"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ============================
// 🟡 Requests
type StructureRequest struct {
	Name      string  `json:"name" binding:"required,max=150"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
	Frequency string  `json:"frequency" binding:"omitempty,oneof=once monthly term yearly"`
	DueDay    *int    `json:"due_day" binding:"omitempty,min=1,max=28"`
	IsActive  *bool   `json:"is_active"`
}

type StudentInput struct {
	Name  string `json:"name" binding:"required,max=200"`
	Ref   string `json:"ref" binding:"required,max=50"`
	Email string `json:"email" binding:"omitempty,email"`
}

// AssignRequest assigns one fee structure to many students. Re-assigning a
// student updates the existing assignment.
type AssignRequest struct {
	FeeStructureID uint           `json:"fee_structure_id" binding:"required"`
	Students       []StudentInput `json:"students" binding:"required,min=1,dive"`
	Amount         *float64       `json:"amount" binding:"omitempty,gt=0"`
	Discount       float64        `json:"discount" binding:"min=0"`
	DueDate        *time.Time     `json:"due_date"`
}

type OfflinePaymentRequest struct {
	Amount    float64    `json:"amount" binding:"required,gt=0"`
	Method    string     `json:"method" binding:"required,oneof=cash bank cheque upi"`
	Reference string     `json:"reference" binding:"max=100"`
	PaidAt    *time.Time `json:"paid_at"`
}

type CreateOrderRequest struct {
	Amount *float64 `json:"amount" binding:"omitempty,gt=0"`
}

type CreateOrderResponse struct {
	OrderID     string  `json:"order_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	RazorpayKey string  `json:"razorpay_key"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type AssignmentFilter struct {
	Status         string
	FeeStructureID uint
	Search         string
	Limit          int
	Offset         int
}

type PaymentFilter struct {
	Status string
	From   time.Time
	To     time.Time
}

// PaymentRow is a payment with its student and fee names for reports.
type PaymentRow struct {
	FeePayment
	StudentName string `json:"student_name"`
	StudentRef  string `json:"student_ref"`
	FeeName     string `json:"fee_name"`
}

type Summary struct {
	TotalDue       float64        `json:"total_due"`
	TotalCollected float64        `json:"total_collected"`
	Outstanding    float64        `json:"outstanding"`
	ByStatus       map[string]int `json:"by_status"`
}

// Receipt for one successful payment.
type Receipt struct {
	ReceiptNumber string    `json:"receipt_number"`
	PaymentID     uint      `json:"payment_id"`
	StudentName   string    `json:"student_name"`
	StudentRef    string    `json:"student_ref"`
	FeeName       string    `json:"fee_name"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"`
	Balance       float64   `json:"balance"`
	GeneratedAt   time.Time `json:"generated_at"`
}
