package usage

import (
	"net/http"

	"licenseplane/pkg/errutil"
	"licenseplane/services/license"

	"github.com/gin-gonic/gin"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	group := engine.Group("/v1/licenses/:id/usage")
	group.POST("", trackHandler(svc))
	group.GET("", historyHandler(svc))
	group.GET("/analytics", analyticsHandler(svc))

	engine.GET("/v1/licenses/:id/compliance", complianceHandler(svc))
	engine.POST("/v1/licenses/:id/compliance/export", exportHandler(svc))
}

type trackRequest struct {
	Metric   license.MetricType `json:"metric" binding:"required"`
	Value    float64            `json:"value"`
	Metadata map[string]any     `json:"metadata"`
}

func trackHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req trackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
			return
		}

		record, err := svc.Track(c.Request.Context(), c.Param("id"), req.Metric, req.Value, req.Metadata)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "usage recorded",
			"usage":   record,
		})
	}
}

func historyHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f HistoryFilter
		if err := c.ShouldBindQuery(&f); err != nil {
			_ = c.Error(errutil.BadRequest("invalid query", errutil.WithErr(err)))
			return
		}
		if err := c.ShouldBindQuery(&f.Pagination); err != nil {
			_ = c.Error(errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
			return
		}

		page, err := svc.History(c.Request.Context(), c.Param("id"), f)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "usage history found",
			"total":   page.Total,
			"usages":  page.Items,
		})
	}
}

func analyticsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		analytics, err := svc.Analytics(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "usage analytics found",
			"analytics": analytics,
		})
	}
}

func complianceHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.Compliance(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "compliance report generated",
			"report":  report,
		})
	}
}

func exportHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := svc.Export(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message": "report export queued",
			"key":     key,
		})
	}
}
