package audit

import (
	"net/http"

	"licenseplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	engine.GET("/v1/licenses/:id/audit", licenseTrailHandler(svc))
	engine.GET("/v1/organizations/:id/audit", organizationTrailHandler(svc))
}

func bindFilter(c *gin.Context) (Filter, error) {
	var f Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		return f, errutil.ValidationFailed("invalid audit filters", errutil.WithErr(err))
	}
	if err := c.ShouldBindQuery(&f.Pagination); err != nil {
		return f, errutil.ValidationFailed("invalid pagination parameters", errutil.WithErr(err))
	}
	return f, nil
}

func licenseTrailHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := bindFilter(c)
		if err != nil {
			_ = c.Error(err)
			return
		}

		page, err := svc.GetAuditTrail(c.Request.Context(), c.Param("id"), f)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Audit trail retrieved successfully",
			"total":   page.Total,
			"items":   page.Items,
		})
	}
}

func organizationTrailHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := bindFilter(c)
		if err != nil {
			_ = c.Error(err)
			return
		}

		page, err := svc.GetOrganizationAuditTrail(c.Request.Context(), c.Param("id"), f)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Audit trail retrieved successfully",
			"total":   page.Total,
			"items":   page.Items,
		})
	}
}
