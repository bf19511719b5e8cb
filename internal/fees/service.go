package fees

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/reports"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
)

var (
	ErrWriteDenied      = errors.New("write access denied")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrNothingDue       = errors.New("nothing is due on this assignment")
	ErrOverpayment      = errors.New("amount exceeds the outstanding balance")
	ErrWaived           = errors.New("assignment is waived")
	ErrInactiveFee      = errors.New("fee structure is inactive")
	ErrNoGateway        = errors.New("online payments are not configured")
	ErrInvalidRange     = errors.New("invalid date range")
)

// Renderer renders report payloads.
type Renderer interface {
	Render(ctx context.Context, schoolID uint, reportType, format string, p reports.Payload, ac middleware.AccessContext, ip string) (*reports.Output, error)
}

type Service struct {
	Repo      Repository
	Gateway   Gateway // optional
	Secret    string
	Reports   Renderer
	AuditSvc  auditlog.Service
	Publisher utils.Publisher // optional

	sendReceipt func(toEmail, studentName, feeName string, amount float64, paymentID string) error
	now         func() time.Time
}

func NewService(repo Repository, gateway Gateway, secret string, rep Renderer, auditSvc auditlog.Service, pub utils.Publisher) *Service {
	return &Service{
		Repo:        repo,
		Gateway:     gateway,
		Secret:      secret,
		Reports:     rep,
		AuditSvc:    auditSvc,
		Publisher:   pub,
		sendReceipt: utils.SendPaymentReceipt,
		now:         time.Now,
	}
}

func (s *Service) audit(ctx context.Context, userID *uint, schoolID uint, action string, details map[string]interface{}, ip, status string) {
	if s.AuditSvc == nil {
		return
	}
	if err := s.AuditSvc.LogAction(ctx, userID, &schoolID, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

// ===========================
// 🧾 Fee structures
func (s *Service) CreateStructure(ctx context.Context, req *StructureRequest, ac middleware.AccessContext, schoolID uint, ip string) (*FeeStructure, error) {
	if !ac.CanWrite() {
		s.audit(ctx, &ac.UserID, schoolID, "FEE_STRUCTURE_CREATED", map[string]interface{}{"name": req.Name, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}
	fs := &FeeStructure{SchoolID: schoolID, Currency: "INR", Frequency: "once", IsActive: true, CreatedBy: ac.UserID}
	applyStructure(fs, req)
	if err := s.Repo.CreateStructure(ctx, fs); err != nil {
		s.audit(ctx, &ac.UserID, schoolID, "FEE_STRUCTURE_CREATED", map[string]interface{}{"name": req.Name, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.audit(ctx, &ac.UserID, schoolID, "FEE_STRUCTURE_CREATED", map[string]interface{}{"fee_structure_id": fs.ID, "name": fs.Name, "amount": fs.Amount}, ip, auditlog.StatusSuccess)
	return fs, nil
}

func applyStructure(fs *FeeStructure, req *StructureRequest) {
	fs.Name = strings.TrimSpace(req.Name)
	fs.Amount = req.Amount
	if req.Frequency != "" {
		fs.Frequency = req.Frequency
	}
	fs.DueDay = req.DueDay
	if req.IsActive != nil {
		fs.IsActive = *req.IsActive
	}
}

func (s *Service) ListStructures(ctx context.Context, schoolID uint, activeOnly bool) ([]FeeStructure, error) {
	return s.Repo.ListStructures(ctx, schoolID, activeOnly)
}

func (s *Service) UpdateStructure(ctx context.Context, id uint, req *StructureRequest, ac middleware.AccessContext, schoolID uint, ip string) (*FeeStructure, error) {
	if !ac.CanWrite() {
		return nil, ErrWriteDenied
	}
	fs, err := s.Repo.GetStructure(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	applyStructure(fs, req)
	if err := s.Repo.UpdateStructure(ctx, fs); err != nil {
		s.audit(ctx, &ac.UserID, schoolID, "FEE_STRUCTURE_UPDATED", map[string]interface{}{"fee_structure_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.audit(ctx, &ac.UserID, schoolID, "FEE_STRUCTURE_UPDATED", map[string]interface{}{"fee_structure_id": id, "amount": fs.Amount, "is_active": fs.IsActive}, ip, auditlog.StatusSuccess)
	return fs, nil
}

// ===========================
// 👩‍🎓 Assignments
func (s *Service) Assign(ctx context.Context, req *AssignRequest, ac middleware.AccessContext, schoolID uint, ip string) (int, error) {
	if !ac.CanWrite() {
		return 0, ErrWriteDenied
	}
	fs, err := s.Repo.GetStructure(ctx, schoolID, req.FeeStructureID)
	if err != nil {
		return 0, err
	}
	if !fs.IsActive {
		return 0, ErrInactiveFee
	}
	amount := fs.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}

	seen := map[string]bool{}
	rows := make([]FeeAssignment, 0, len(req.Students))
	for _, st := range req.Students {
		ref := strings.TrimSpace(st.Ref)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		rows = append(rows, FeeAssignment{
			SchoolID:       schoolID,
			FeeStructureID: fs.ID,
			StudentName:    strings.TrimSpace(st.Name),
			StudentRef:     ref,
			ContactEmail:   strings.TrimSpace(st.Email),
			Amount:         amount,
			Discount:       req.Discount,
			DueDate:        req.DueDate,
			Status:         StatusPending,
		})
	}
	if err := s.Repo.UpsertAssignments(ctx, rows); err != nil {
		s.audit(ctx, &ac.UserID, schoolID, "FEES_ASSIGNED", map[string]interface{}{"fee_structure_id": fs.ID, "error": err.Error()}, ip, auditlog.StatusFailure)
		return 0, err
	}
	s.audit(ctx, &ac.UserID, schoolID, "FEES_ASSIGNED", map[string]interface{}{"fee_structure_id": fs.ID, "students": len(rows), "amount": amount}, ip, auditlog.StatusSuccess)
	return len(rows), nil
}

func (s *Service) ListAssignments(ctx context.Context, schoolID uint, f AssignmentFilter) ([]FeeAssignment, int64, error) {
	return s.Repo.ListAssignments(ctx, schoolID, f)
}

func (s *Service) GetAssignment(ctx context.Context, schoolID, id uint) (*FeeAssignment, error) {
	return s.Repo.GetAssignment(ctx, schoolID, id)
}

func (s *Service) Waive(ctx context.Context, id uint, ac middleware.AccessContext, schoolID uint, ip string) error {
	if !ac.CanWrite() {
		return ErrWriteDenied
	}
	if _, err := s.Repo.GetAssignment(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.Repo.SetAssignmentStatus(ctx, id, StatusWaived); err != nil {
		return err
	}
	s.audit(ctx, &ac.UserID, schoolID, "FEE_WAIVED", map[string]interface{}{"fee_assignment_id": id}, ip, auditlog.StatusSuccess)
	return nil
}

func (s *Service) Summary(ctx context.Context, schoolID uint) (*Summary, error) {
	return s.Repo.Summary(ctx, schoolID)
}

// payable checks amount against the outstanding balance; a nil amount means
// the whole balance.
func payable(a *FeeAssignment, amount *float64) (float64, error) {
	if a.Status == StatusWaived {
		return 0, ErrWaived
	}
	balance := a.Due() - a.PaidAmount
	if balance <= 0.004 {
		return 0, ErrNothingDue
	}
	if amount == nil {
		return balance, nil
	}
	if *amount > balance+0.004 {
		return 0, ErrOverpayment
	}
	return *amount, nil
}

// ===========================
// 💵 Offline payment (cash, bank, cheque, upi at the counter)
func (s *Service) RecordOfflinePayment(ctx context.Context, assignmentID uint, req *OfflinePaymentRequest, ac middleware.AccessContext, schoolID uint, ip string) (*FeeAssignment, error) {
	fail := func(err error) (*FeeAssignment, error) {
		s.audit(ctx, &ac.UserID, schoolID, "FEE_PAYMENT_RECORDED", map[string]interface{}{"fee_assignment_id": assignmentID, "amount": req.Amount, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	if !ac.CanWrite() {
		return fail(ErrWriteDenied)
	}
	a, err := s.Repo.GetAssignment(ctx, schoolID, assignmentID)
	if err != nil {
		return fail(err)
	}
	amount, err := payable(a, &req.Amount)
	if err != nil {
		return fail(err)
	}
	paidAt := s.now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	p := &FeePayment{
		SchoolID:        schoolID,
		FeeAssignmentID: a.ID,
		Amount:          amount,
		Method:          req.Method,
		Status:          PaymentSuccess,
		Reference:       req.Reference,
		PaidAt:          &paidAt,
		RecordedBy:      ac.UserID,
	}
	if err := s.Repo.CreatePayment(ctx, p); err != nil {
		return fail(err)
	}
	updated, err := s.Repo.Recompute(ctx, a.ID)
	if err != nil {
		return fail(err)
	}
	s.audit(ctx, &ac.UserID, schoolID, "FEE_PAYMENT_RECORDED", map[string]interface{}{"fee_assignment_id": a.ID, "payment_id": p.ID, "amount": amount, "method": req.Method, "status": updated.Status}, ip, auditlog.StatusSuccess)
	s.captured(a, p, ac.UserID)
	updated.FeeStructure = a.FeeStructure
	return updated, nil
}

// ===========================
// 🌐 Online payment through Razorpay
func (s *Service) CreateOrder(ctx context.Context, assignmentID uint, req *CreateOrderRequest, ac middleware.AccessContext, schoolID uint, ip string) (*CreateOrderResponse, error) {
	fail := func(err error) (*CreateOrderResponse, error) {
		s.audit(ctx, &ac.UserID, schoolID, "FEE_ORDER_CREATED", map[string]interface{}{"fee_assignment_id": assignmentID, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	if s.Gateway == nil {
		return fail(ErrNoGateway)
	}
	a, err := s.Repo.GetAssignment(ctx, schoolID, assignmentID)
	if err != nil {
		return fail(err)
	}
	amount, err := payable(a, req.Amount)
	if err != nil {
		return fail(err)
	}
	orderID, err := s.Gateway.CreateOrder(amount, fmt.Sprintf("fee-%d-%d", a.ID, s.now().Unix()), map[string]interface{}{
		"school_id":         schoolID,
		"fee_assignment_id": a.ID,
		"student_ref":       a.StudentRef,
	})
	if err != nil {
		return fail(err)
	}
	p := &FeePayment{
		SchoolID:        schoolID,
		FeeAssignmentID: a.ID,
		Amount:          amount,
		Method:          MethodOnline,
		Status:          PaymentPending,
		OrderID:         &orderID,
		RecordedBy:      ac.UserID,
	}
	if err := s.Repo.CreatePayment(ctx, p); err != nil {
		return fail(err)
	}
	s.audit(ctx, &ac.UserID, schoolID, "FEE_ORDER_CREATED", map[string]interface{}{"fee_assignment_id": a.ID, "order_id": orderID, "amount": amount}, ip, auditlog.StatusSuccess)
	return &CreateOrderResponse{OrderID: orderID, Amount: amount, Currency: "INR", RazorpayKey: s.Gateway.Key()}, nil
}

// VerifyPayment checks the checkout signature, then asks the gateway for the
// payment state. Verifying an already captured order is a no-op.
func (s *Service) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest, ip string) (*FeeAssignment, error) {
	fail := func(schoolID uint, reason string, err error) (*FeeAssignment, error) {
		s.audit(ctx, nil, schoolID, "FEE_PAYMENT_VERIFICATION_FAILED", map[string]interface{}{
			"order_id":   req.OrderID,
			"payment_id": req.PaymentID,
			"reason":     reason,
		}, ip, auditlog.StatusFailure)
		return nil, err
	}
	if s.Gateway == nil {
		return nil, ErrNoGateway
	}
	if !VerifySignature(s.Secret, req.OrderID, req.PaymentID, req.Signature) {
		return fail(0, "invalid payment signature", ErrInvalidSignature)
	}
	p, err := s.Repo.GetPaymentByOrderID(ctx, req.OrderID)
	if err != nil {
		return fail(0, "payment record not found", err)
	}
	a, err := s.Repo.GetAssignment(ctx, p.SchoolID, p.FeeAssignmentID)
	if err != nil {
		return fail(p.SchoolID, "assignment not found", err)
	}
	if p.Status == PaymentSuccess {
		return a, nil
	}
	gp, err := s.Gateway.FetchPayment(req.PaymentID)
	if err != nil {
		return fail(p.SchoolID, "razorpay payment fetch failed", err)
	}

	p.PaymentID = &req.PaymentID
	p.Method = gp.Method
	action, status := "FEE_PAYMENT_FAILED", auditlog.StatusFailure
	if gp.Status == "captured" {
		now := s.now()
		p.Status = PaymentSuccess
		p.Amount = gp.Amount
		p.PaidAt = &now
		action, status = "FEE_PAYMENT_CAPTURED", auditlog.StatusSuccess
	} else {
		p.Status = PaymentFailed
	}
	if err := s.Repo.UpdatePayment(ctx, p); err != nil {
		return fail(p.SchoolID, "payment update failed", err)
	}
	updated, err := s.Repo.Recompute(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &p.RecordedBy, p.SchoolID, action, map[string]interface{}{
		"order_id":        req.OrderID,
		"payment_id":      req.PaymentID,
		"amount":          p.Amount,
		"method":          p.Method,
		"razorpay_status": gp.Status,
	}, ip, status)
	if p.Status == PaymentSuccess {
		s.captured(a, p, p.RecordedBy)
	}
	updated.FeeStructure = a.FeeStructure
	return updated, nil
}

// captured announces a successful payment and mails the receipt.
func (s *Service) captured(a *FeeAssignment, p *FeePayment, actorID uint) {
	feeName := ""
	if a.FeeStructure != nil {
		feeName = a.FeeStructure.Name
	}
	utils.PublishAsync(s.Publisher, utils.DomainEvent{
		Type:     utils.EventPaymentCaptured,
		SchoolID: a.SchoolID,
		ActorID:  actorID,
		Payload: map[string]interface{}{
			"fee_assignment_id": a.ID,
			"payment_id":        p.ID,
			"student_name":      a.StudentName,
			"fee_name":          feeName,
			"amount":            p.Amount,
		},
		OccurredAt: s.now(),
	})
	if a.ContactEmail == "" || s.sendReceipt == nil {
		return
	}
	ref := p.Reference
	if p.PaymentID != nil {
		ref = *p.PaymentID
	}
	go func() {
		if err := s.sendReceipt(a.ContactEmail, a.StudentName, feeName, p.Amount, ref); err != nil {
			log.Printf("⚠️ receipt mail for payment %d: %v", p.ID, err)
		}
	}()
}

// ===========================
// 📤 Fee report export
func (s *Service) Export(ctx context.Context, preset, start, end, status, format string, ac middleware.AccessContext, schoolID uint, ip string) (*reports.Output, error) {
	from, to, err := reports.DateRange(preset, start, end, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	payments, err := s.Repo.ListPayments(ctx, schoolID, PaymentFilter{Status: status, From: from, To: to})
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]interface{}, 0, len(payments))
	for _, p := range payments {
		paid := ""
		if p.PaidAt != nil {
			paid = p.PaidAt.Format("2006-01-02 15:04")
		}
		ref := p.Reference
		if p.PaymentID != nil {
			ref = *p.PaymentID
		}
		rows = append(rows, map[string]interface{}{
			"id":           p.ID,
			"student_name": p.StudentName,
			"student_ref":  p.StudentRef,
			"fee_name":     p.FeeName,
			"amount":       fmt.Sprintf("%.2f", p.Amount),
			"method":       p.Method,
			"status":       p.Status,
			"reference":    ref,
			"paid_at":      paid,
		})
	}
	payload := reports.Payload{
		"title":        "Fee Collection Report",
		"header_notes": []string{fmt.Sprintf("%s to %s", from.Format("02 Jan 2006"), to.Format("02 Jan 2006"))},
		"columns": []interface{}{
			map[string]interface{}{"key": "id", "label": "Receipt #"},
			map[string]interface{}{"key": "student_name", "label": "Student"},
			map[string]interface{}{"key": "student_ref", "label": "Admission No"},
			map[string]interface{}{"key": "fee_name", "label": "Fee"},
			map[string]interface{}{"key": "amount", "label": "Amount"},
			map[string]interface{}{"key": "method", "label": "Method"},
			map[string]interface{}{"key": "status", "label": "Status"},
			map[string]interface{}{"key": "reference", "label": "Reference"},
			map[string]interface{}{"key": "paid_at", "label": "Paid At"},
		},
		"rows": rows,
	}
	return s.Reports.Render(ctx, schoolID, reports.ReportTypeTable, format, payload, ac, ip)
}

var ErrNotSettled = errors.New("receipts are only issued for successful payments")

func (s *Service) Receipt(ctx context.Context, schoolID, paymentID uint) (*Receipt, error) {
	p, err := s.Repo.GetPayment(ctx, schoolID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != PaymentSuccess {
		return nil, ErrNotSettled
	}
	a, err := s.Repo.GetAssignment(ctx, schoolID, p.FeeAssignmentID)
	if err != nil {
		return nil, err
	}
	r := &Receipt{
		ReceiptNumber: fmt.Sprintf("FEE-%d-%d", schoolID, p.ID),
		PaymentID:     p.ID,
		StudentName:   a.StudentName,
		StudentRef:    a.StudentRef,
		Amount:        p.Amount,
		Method:        p.Method,
		TransactionID: p.Reference,
		PaidAt:        p.CreatedAt,
		Balance:       a.Due() - a.PaidAmount,
		GeneratedAt:   s.now(),
	}
	if r.Balance < 0 {
		r.Balance = 0
	}
	if a.FeeStructure != nil {
		r.FeeName = a.FeeStructure.Name
	}
	if p.PaymentID != nil {
		r.TransactionID = *p.PaymentID
	}
	if p.PaidAt != nil {
		r.PaidAt = *p.PaidAt
	}
	return r, nil
}
