package reports

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/middleware"
)

type Handler struct {
	service Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{service: svc}
}

// WriteOutput sends a rendered report. HTML is shown inline, other formats
// are downloaded.
func WriteOutput(c *gin.Context, out *Output) {
	disposition := "attachment"
	if out.ContentType == "text/html; charset=utf-8" {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%s", disposition, out.Filename))
	c.Header("X-Report-Items", fmt.Sprint(out.Items))
	c.Data(http.StatusOK, out.ContentType, out.Data)
}

// WriteError maps rendering errors to HTTP responses.
func WriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownReportType), errors.Is(err, ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report", "details": err.Error()})
	}
}

// ===========================
// 🖨️ Render - POST /reports/:type/render
// @Summary Render a report from a flat payload
// @Tags Reports
// @Accept json
// @Produce html,application/pdf,text/csv
// @Param type path string true "roll_slips | secret_labels | student_history | guest_list | table"
// @Param format query string false "html | pdf | xlsx | csv"
// @Param body body RenderRequest true "Report payload"
// @Success 200 {file} file
// @Router /api/v1/reports/{type}/render [post]
func (h *Handler) Render(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}

	out, err := h.service.Render(c.Request.Context(), schoolID, c.Param("type"), c.DefaultQuery("format", FormatHTML), req.Payload, ac, middleware.GetIPFromContext(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	WriteOutput(c, out)
}

// ===========================
// 📋 Types - GET /reports/types
// @Summary List report types
// @Tags Reports
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/reports/types [get]
func (h *Handler) Types(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"types":   ReportTypes(),
		"formats": []string{FormatHTML, FormatPDF, FormatExcel, FormatCSV},
	})
}
