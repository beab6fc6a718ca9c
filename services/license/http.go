package license

import (
	"net/http"

	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	group := engine.Group("/v1/licenses")
	group.POST("", createHandler(svc))
	group.GET("", listHandler(svc))
	group.GET("/:id", getHandler(svc))
	group.PATCH("/:id", updateHandler(svc))
	group.POST("/:id/validate", validateHandler(svc))
	group.POST("/:id/check-limits", checkLimitsHandler(svc))
	group.POST("/:id/renew", renewHandler(svc))
	group.POST("/:id/suspend", suspendHandler(svc))
	group.POST("/:id/activate", activateHandler(svc))
	group.POST("/:id/transfer", transferHandler(svc))

	engine.GET("/v1/organizations/:id/licenses", listByOrganizationHandler(svc))
}

func createHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
			return
		}

		lic, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "license created",
			"license": lic,
		})
	}
}

func getHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		lic, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "license found",
			"license": lic,
		})
	}
}

func listHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p pagination.Pagination
		if err := c.ShouldBindQuery(&p); err != nil {
			_ = c.Error(errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
			return
		}

		page, err := svc.List(c.Request.Context(), p)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "licenses found",
			"total":    page.Total,
			"licenses": page.Items,
		})
	}
}

func listByOrganizationHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p pagination.Pagination
		if err := c.ShouldBindQuery(&p); err != nil {
			_ = c.Error(errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
			return
		}

		page, err := svc.ListByOrganization(c.Request.Context(), c.Param("id"), p)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "licenses found",
			"total":    page.Total,
			"licenses": page.Items,
		})
	}
}

func updateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
			return
		}

		lic, err := svc.Update(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "license updated",
			"license": lic,
		})
	}
}

func validateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		valid, err := svc.Validate(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "license validated",
			"valid":   valid,
		})
	}
}

type checkLimitsRequest struct {
	Metric       MetricType `json:"metric" binding:"required"`
	CurrentValue float64    `json:"current_value"`
}

func checkLimitsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkLimitsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
			return
		}

		exceeded, err := svc.CheckLimits(c.Request.Context(), c.Param("id"), req.Metric, req.CurrentValue)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "limits checked",
			"metric":   req.Metric,
			"exceeded": exceeded,
		})
	}
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
}

func renewHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actorRequest
		_ = c.ShouldBindJSON(&req)

		lic, err := svc.Renew(c.Request.Context(), c.Param("id"), req.ActorID)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "license renewed",
			"license": lic,
		})
	}
}

func suspendHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actorRequest
		_ = c.ShouldBindJSON(&req)

		lic, err := svc.Suspend(c.Request.Context(), c.Param("id"), req.ActorID)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "license suspended",
			"license": lic,
		})
	}
}

func activateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actorRequest
		_ = c.ShouldBindJSON(&req)

		lic, err := svc.Activate(c.Request.Context(), c.Param("id"), req.ActorID)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "license activated",
			"license": lic,
		})
	}
}

func transferHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
			return
		}

		lic, err := svc.Transfer(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "license transferred",
			"license": lic,
		})
	}
}
