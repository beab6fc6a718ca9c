package middleware

import (
	"licenseplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error attached to the gin context as the standard
// {error:{code,message,details}} envelope with a mapped HTTP status.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		base := errutil.ToBase(err.Err)
		c.JSON(base.Code.HTTPStatus(), base.JSON())
	}
}
