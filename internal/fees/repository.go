package fees

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrStructureNotFound  = errors.New("fee structure not found")
	ErrAssignmentNotFound = errors.New("fee assignment not found")
	ErrPaymentNotFound    = errors.New("payment not found")
)

type Repository interface {
	CreateStructure(ctx context.Context, fs *FeeStructure) error
	GetStructure(ctx context.Context, schoolID, id uint) (*FeeStructure, error)
	ListStructures(ctx context.Context, schoolID uint, activeOnly bool) ([]FeeStructure, error)
	UpdateStructure(ctx context.Context, fs *FeeStructure) error

	UpsertAssignments(ctx context.Context, rows []FeeAssignment) error
	GetAssignment(ctx context.Context, schoolID, id uint) (*FeeAssignment, error)
	ListAssignments(ctx context.Context, schoolID uint, f AssignmentFilter) ([]FeeAssignment, int64, error)
	SetAssignmentStatus(ctx context.Context, id uint, status string) error

	CreatePayment(ctx context.Context, p *FeePayment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*FeePayment, error)
	GetPayment(ctx context.Context, schoolID, id uint) (*FeePayment, error)
	UpdatePayment(ctx context.Context, p *FeePayment) error
	ListPayments(ctx context.Context, schoolID uint, f PaymentFilter) ([]PaymentRow, error)
	Recompute(ctx context.Context, assignmentID uint) (*FeeAssignment, error)
	Summary(ctx context.Context, schoolID uint) (*Summary, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// ===========================
// 🧾 Fee structures
func (r *repository) CreateStructure(ctx context.Context, fs *FeeStructure) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(fs).Error, "create fee structure")
}

func (r *repository) GetStructure(ctx context.Context, schoolID, id uint) (*FeeStructure, error) {
	var fs FeeStructure
	err := r.db.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).First(&fs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStructureNotFound
	}
	return &fs, errors.Wrapf(err, "get fee structure %d", id)
}

func (r *repository) ListStructures(ctx context.Context, schoolID uint, activeOnly bool) ([]FeeStructure, error) {
	list := []FeeStructure{}
	q := r.db.WithContext(ctx).Where("school_id = ?", schoolID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("name").Find(&list).Error
	return list, errors.Wrap(err, "list fee structures")
}

func (r *repository) UpdateStructure(ctx context.Context, fs *FeeStructure) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(fs).Error, "update fee structure")
}

// ===========================
// 👩‍🎓 Assignments
// UpsertAssignments inserts rows, updating name, amount, discount and due
// date of students already assigned the same structure.
func (r *repository) UpsertAssignments(ctx context.Context, rows []FeeAssignment) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fee_structure_id"}, {Name: "student_ref"}},
		DoUpdates: clause.AssignmentColumns([]string{"student_name", "contact_email", "amount", "discount", "due_date", "updated_at"}),
	}).Create(&rows).Error
	return errors.Wrap(err, "assign fees")
}

func (r *repository) GetAssignment(ctx context.Context, schoolID, id uint) (*FeeAssignment, error) {
	var a FeeAssignment
	err := r.db.WithContext(ctx).Preload("FeeStructure").Where("id = ? AND school_id = ?", id, schoolID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssignmentNotFound
	}
	return &a, errors.Wrapf(err, "get fee assignment %d", id)
}

func (r *repository) ListAssignments(ctx context.Context, schoolID uint, f AssignmentFilter) ([]FeeAssignment, int64, error) {
	q := r.db.WithContext(ctx).Model(&FeeAssignment{}).Where("school_id = ?", schoolID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.FeeStructureID != 0 {
		q = q.Where("fee_structure_id = ?", f.FeeStructureID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(student_name) LIKE ? OR LOWER(student_ref) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count fee assignments")
	}
	list := []FeeAssignment{}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	err := q.Preload("FeeStructure").Order("student_name, id").Find(&list).Error
	return list, total, errors.Wrap(err, "list fee assignments")
}

func (r *repository) SetAssignmentStatus(ctx context.Context, id uint, status string) error {
	err := r.db.WithContext(ctx).Model(&FeeAssignment{}).Where("id = ?", id).Update("status", status).Error
	return errors.Wrap(err, "set fee assignment status")
}

// ===========================
// 💳 Payments
func (r *repository) CreatePayment(ctx context.Context, p *FeePayment) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(p).Error, "create payment")
}

func (r *repository) GetPaymentByOrderID(ctx context.Context, orderID string) (*FeePayment, error) {
	var p FeePayment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	return &p, errors.Wrap(err, "get payment by order")
}

func (r *repository) GetPayment(ctx context.Context, schoolID, id uint) (*FeePayment, error) {
	var p FeePayment
	err := r.db.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	return &p, errors.Wrapf(err, "get payment %d", id)
}

func (r *repository) UpdatePayment(ctx context.Context, p *FeePayment) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(p).Error, "update payment")
}

func (r *repository) ListPayments(ctx context.Context, schoolID uint, f PaymentFilter) ([]PaymentRow, error) {
	rows := []PaymentRow{}
	q := r.db.WithContext(ctx).
		Table("fee_payments p").
		Select("p.*, a.student_name, a.student_ref, s.name AS fee_name").
		Joins("JOIN fee_assignments a ON a.id = p.fee_assignment_id").
		Joins("JOIN fee_structures s ON s.id = a.fee_structure_id").
		Where("p.school_id = ?", schoolID)
	if f.Status != "" {
		q = q.Where("p.status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("p.created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("p.created_at <= ?", f.To)
	}
	err := q.Order("p.created_at DESC, p.id DESC").Scan(&rows).Error
	return rows, errors.Wrap(err, "list payments")
}

// Recompute sums successful payments and moves the assignment to paid,
// partial or pending. Waived assignments keep their status.
func (r *repository) Recompute(ctx context.Context, assignmentID uint) (*FeeAssignment, error) {
	var a FeeAssignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, assignmentID).Error; err != nil {
			return errors.Wrap(err, "lock fee assignment")
		}
		var paid float64
		if err := tx.Model(&FeePayment{}).
			Where("fee_assignment_id = ? AND status = ?", assignmentID, PaymentSuccess).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&paid).Error; err != nil {
			return errors.Wrap(err, "sum payments")
		}
		a.PaidAmount = paid
		if a.Status != StatusWaived {
			a.Status = statusFor(paid, a.Due())
		}
		return errors.Wrap(tx.Model(&a).Updates(map[string]interface{}{
			"paid_amount": a.PaidAmount,
			"status":      a.Status,
			"updated_at":  time.Now(),
		}).Error, "update fee assignment")
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func statusFor(paid, due float64) string {
	switch {
	case paid+0.005 >= due:
		return StatusPaid
	case paid > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

func (r *repository) Summary(ctx context.Context, schoolID uint) (*Summary, error) {
	var totals struct {
		Due       float64
		Collected float64
	}
	err := r.db.WithContext(ctx).Model(&FeeAssignment{}).
		Select("COALESCE(SUM(CASE WHEN status <> ? THEN amount - discount ELSE 0 END), 0) AS due, COALESCE(SUM(paid_amount), 0) AS collected", StatusWaived).
		Where("school_id = ?", schoolID).
		Scan(&totals).Error
	if err != nil {
		return nil, errors.Wrap(err, "fee totals")
	}

	var buckets []struct {
		Status string
		Total  int
	}
	err = r.db.WithContext(ctx).Model(&FeeAssignment{}).
		Select("status, COUNT(*) AS total").
		Where("school_id = ?", schoolID).
		Group("status").
		Scan(&buckets).Error
	if err != nil {
		return nil, errors.Wrap(err, "fee status counts")
	}

	s := &Summary{TotalDue: totals.Due, TotalCollected: totals.Collected, ByStatus: map[string]int{}}
	s.Outstanding = s.TotalDue - s.TotalCollected
	if s.Outstanding < 0 {
		s.Outstanding = 0
	}
	for _, b := range buckets {
		s.ByStatus[b.Status] = b.Total
	}
	return s, nil
}
