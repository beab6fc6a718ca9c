package organization

import (
	"net/http"

	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	group := engine.Group("/v1/organizations")
	group.POST("", createHandler(svc))
	group.GET("", listHandler(svc))
	group.GET("/:id", getHandler(svc))
}

func createHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
			return
		}

		org, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message":      "Organization created successfully",
			"organization": org,
		})
	}
}

func listHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p pagination.Pagination
		if err := c.ShouldBindQuery(&p); err != nil {
			_ = c.Error(errutil.ValidationFailed("invalid pagination parameters", errutil.WithErr(err)))
			return
		}

		page, err := svc.List(c.Request.Context(), p)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":       "Organizations retrieved successfully",
			"total":         page.Total,
			"organizations": page.Items,
		})
	}
}

func getHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":      "Organization retrieved successfully",
			"organization": org,
		})
	}
}
