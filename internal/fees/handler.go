package fees

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/reports"
	"github.com/sharath018/school-management-backend/middleware"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrStructureNotFound), errors.Is(err, ErrAssignmentNotFound), errors.Is(err, ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrWriteDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNothingDue), errors.Is(err, ErrOverpayment), errors.Is(err, ErrWaived),
		errors.Is(err, ErrInactiveFee), errors.Is(err, ErrNotSettled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNoGateway):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidRange), errors.Is(err, reports.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// ===========================
// 🧾 Create Fee Structure - POST /fees/structures
// @Summary Create a fee structure
// @Tags Fees
// @Accept json
// @Produce json
// @Param body body StructureRequest true "Fee structure"
// @Success 201 {object} FeeStructure
// @Router /api/v1/fees/structures [post]
func (h *Handler) CreateStructure(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	var req StructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	fs, err := h.Service.CreateStructure(c.Request.Context(), &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fs)
}

func (h *Handler) ListStructures(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	list, err := h.Service.ListStructures(c.Request.Context(), schoolID, c.Query("active") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *Handler) UpdateStructure(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req StructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	fs, err := h.Service.UpdateStructure(c.Request.Context(), id, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fs)
}

// ===========================
// 👩‍🎓 Assign Fees - POST /fees/assignments
// @Summary Assign a fee structure to students
// @Tags Fees
// @Accept json
// @Produce json
// @Param body body AssignRequest true "Students"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/fees/assignments [post]
func (h *Handler) Assign(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	n, err := h.Service.Assign(c.Request.Context(), &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assigned": n})
}

func (h *Handler) ListAssignments(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	structureID, _ := strconv.ParseUint(c.Query("fee_structure_id"), 10, 32)
	list, total, err := h.Service.ListAssignments(c.Request.Context(), schoolID, AssignmentFilter{
		Status:         c.Query("status"),
		FeeStructureID: uint(structureID),
		Search:         c.Query("search"),
		Limit:          limit,
		Offset:         (page - 1) * limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       list,
		"pagination": gin.H{"page": page, "limit": limit, "total": total},
	})
}

func (h *Handler) GetAssignment(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := h.Service.GetAssignment(c.Request.Context(), schoolID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) Waive(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Service.Waive(c.Request.Context(), id, ac, schoolID, middleware.GetIPFromContext(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "fee waived"})
}

// ===========================
// 💵 Record Offline Payment - POST /fees/assignments/:id/payments
// @Summary Record a counter payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path int true "Assignment ID"
// @Param body body OfflinePaymentRequest true "Payment"
// @Success 200 {object} FeeAssignment
// @Router /api/v1/fees/assignments/{id}/payments [post]
func (h *Handler) RecordPayment(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req OfflinePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	a, err := h.Service.RecordOfflinePayment(c.Request.Context(), id, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// ===========================
// 🌐 Create Razorpay Order - POST /fees/assignments/:id/order
// @Summary Start an online fee payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path int true "Assignment ID"
// @Success 200 {object} CreateOrderResponse
// @Router /api/v1/fees/assignments/{id}/order [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CreateOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
	}
	resp, err := h.Service.CreateOrder(c.Request.Context(), id, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ===========================
// ✅ Verify Payment - POST /fees/verify
// @Summary Verify a Razorpay checkout
// @Tags Fees
// @Accept json
// @Produce json
// @Param body body VerifyPaymentRequest true "Checkout result"
// @Success 200 {object} FeeAssignment
// @Router /api/v1/fees/verify [post]
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	a, err := h.Service.VerifyPayment(c.Request.Context(), &req, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment verified", "assignment": a})
}

func (h *Handler) Receipt(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.Service.Receipt(c.Request.Context(), schoolID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": r, "success": true})
}

func (h *Handler) Summary(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	sum, err := h.Service.Summary(c.Request.Context(), schoolID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ===========================
// 📤 Export Payments - GET /fees/payments/export
// @Summary Export fee collections
// @Tags Fees
// @Produce octet-stream
// @Param date_range query string false "daily | weekly | monthly | yearly | custom"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Param status query string false "pending | success | failed"
// @Param format query string false "csv | xlsx | pdf | html"
// @Router /api/v1/fees/payments/export [get]
func (h *Handler) Export(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	out, err := h.Service.Export(c.Request.Context(),
		c.DefaultQuery("date_range", reports.DateRangeMonthly), c.Query("start_date"), c.Query("end_date"),
		c.Query("status"), c.DefaultQuery("format", reports.FormatCSV),
		ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	reports.WriteOutput(c, out)
}
