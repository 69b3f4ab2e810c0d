package controller

import (
	"edutest_backend/internal/service"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ExportController struct {
	Export *service.ExportService
}

func NewExportController(export *service.ExportService) *ExportController {
	return &ExportController{Export: export}
}

// @Summary Download the submission history as CSV
// @Tags teacher
// @Produce text/csv
// @Router /api/teacher/exports/submissions.csv [get]
func (c *ExportController) Download(ctx *gin.Context) {
	ctx.Header("Content-Disposition", `attachment; filename="Ket_qua_hoc_sinh.csv"`)
	ctx.Header("Content-Type", util.MimeCSV)
	ctx.Status(http.StatusOK)
	if err := c.Export.WriteCSV(ctx.Writer); err != nil {
		logger.Log.Error("CSV export failed", zap.Error(err))
	}
}

// Publish stores the CSV with the configured export sink.
func (c *ExportController) Publish(ctx *gin.Context) {
	url, err := c.Export.Publish(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"url": url})
}
