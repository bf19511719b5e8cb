package platform

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/school"
	"github.com/sharath018/school-management-backend/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrOrganizationNotFound), errors.Is(err, ErrPlanNotFound), errors.Is(err, ErrSubscriptionNotFound),
		errors.Is(err, ErrTestimonialNotFound), errors.Is(err, ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSlugTaken), errors.Is(err, ErrNotRenewable), errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrInactivePlan), errors.Is(err, ErrInactiveOrg):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidSlug), errors.Is(err, ErrInvalidCycle):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrMessageNotReplied):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

func paging(c *gin.Context, def int) (limit, page int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		limit = def
	}
	page, err = strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	return limit, page
}

func adminID(c *gin.Context) uint {
	if ac, ok := middleware.GetAccessContext(c); ok {
		return ac.UserID
	}
	return 0
}

// =========================== ORGANIZATIONS ===========================

// POST /platform/organizations
// @Summary Create an organization
// @Tags Platform
// @Accept json
// @Produce json
// @Param body body OrganizationRequest true "Organization"
// @Success 201 {object} Organization
// @Router /api/v1/platform/organizations [post]
func (h *Handler) CreateOrganization(c *gin.Context) {
	var req OrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	o, err := h.service.CreateOrganization(c.Request.Context(), &req, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// GET /platform/organizations?search=&active=true&limit=10&page=1
func (h *Handler) ListOrganizations(c *gin.Context) {
	limit, page := paging(c, 10)
	f := OrganizationFilter{Search: c.Query("search"), Limit: limit, Page: page}
	if v := c.Query("active"); v != "" {
		active := strings.EqualFold(v, "true")
		f.Active = &active
	}
	orgs, total, err := h.service.ListOrganizations(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orgs, "total": total, "page": page, "limit": limit})
}

func (h *Handler) GetOrganization(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	o, err := h.service.GetOrganization(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) UpdateOrganization(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req OrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	o, err := h.service.UpdateOrganization(c.Request.Context(), id, &req, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// GET /platform/organizations/:id/schools
func (h *Handler) ListSchools(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	schools, err := h.service.ListSchools(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": schools})
}

// POST /platform/organizations/:id/schools
// @Summary Create a school under an organization
// @Tags Platform
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param body body school.CreateSchoolRequest true "School"
// @Success 201 {object} school.School
// @Router /api/v1/platform/organizations/{id}/schools [post]
func (h *Handler) CreateSchool(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	var req school.CreateSchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	sc, err := h.service.CreateSchool(c.Request.Context(), id, &req, ac, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}

// =========================== PLANS & SUBSCRIPTIONS ===========================

func (h *Handler) CreatePlan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	p, err := h.service.CreatePlan(c.Request.Context(), &req, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.service.ListPlans(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (h *Handler) UpdatePlan(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	p, err := h.service.UpdatePlan(c.Request.Context(), id, &req, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /platform/organizations/:id/subscriptions
// @Summary Put an organization on a plan
// @Tags Platform
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param body body SubscribeRequest true "Plan"
// @Success 201 {object} Subscription
// @Router /api/v1/platform/organizations/{id}/subscriptions [post]
func (h *Handler) Subscribe(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	sub, err := h.service.Subscribe(c.Request.Context(), id, &req, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// GET /platform/subscriptions?organization_id=&status=
func (h *Handler) ListSubscriptions(c *gin.Context) {
	orgID, _ := strconv.ParseUint(c.Query("organization_id"), 10, 32)
	subs, err := h.service.ListSubscriptions(c.Request.Context(), uint(orgID), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subs})
}

func (h *Handler) CancelSubscription(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	sub, err := h.service.CancelSubscription(c.Request.Context(), id, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) RenewSubscription(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	sub, err := h.service.Renew(c.Request.Context(), id, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// =========================== TESTIMONIALS ===========================

func (h *Handler) CreateTestimonial(c *gin.Context) {
	var req TestimonialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	t, err := h.service.CreateTestimonial(c.Request.Context(), &req, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTestimonials(c *gin.Context) {
	list, err := h.service.ListTestimonials(c.Request.Context(), false)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// GET /public/testimonials
// @Summary Published testimonials
// @Tags Public
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/public/testimonials [get]
func (h *Handler) PublicTestimonials(c *gin.Context) {
	list, err := h.service.ListTestimonials(c.Request.Context(), true)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *Handler) UpdateTestimonial(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req TestimonialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	t, err := h.service.UpdateTestimonial(c.Request.Context(), id, &req, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTestimonial(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.service.DeleteTestimonial(c.Request.Context(), id, adminID(c), middleware.GetIPFromContext(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Testimonial deleted"})
}

// =========================== CONTACT MESSAGES ===========================

// POST /public/contact
// @Summary Send a message to the platform team
// @Tags Public
// @Accept json
// @Produce json
// @Param body body ContactRequest true "Message"
// @Success 201 {object} map[string]interface{}
// @Router /api/v1/public/contact [post]
func (h *Handler) SubmitContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	m, err := h.service.SubmitContact(c.Request.Context(), &req, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Thank you, we will get back to you soon", "id": m.ID})
}

// GET /platform/contact-messages?status=new&limit=20&page=1
func (h *Handler) ListMessages(c *gin.Context) {
	limit, page := paging(c, 20)
	list, total, err := h.service.ListMessages(c.Request.Context(), c.Query("status"), limit, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

func (h *Handler) GetMessage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	m, err := h.service.GetMessage(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) SetMessageStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req ContactStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	m, err := h.service.SetMessageStatus(c.Request.Context(), id, req.Status, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) ReplyMessage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req ContactReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	m, err := h.service.Reply(c.Request.Context(), id, req.Reply, adminID(c), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// =========================== DASHBOARD ===========================

// GET /platform/dashboard
// @Summary Platform counts
// @Tags Platform
// @Produce json
// @Success 200 {object} Dashboard
// @Router /api/v1/platform/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
