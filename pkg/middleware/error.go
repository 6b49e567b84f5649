package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"incentive-controlplane/pkg/errutil"
)

// Error renders the last handler error as a JSON body with the HTTP status
// derived from its CoreStatus. Errors that are not BaseError come out as a
// generic 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(last.Err, &base) {
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError,
			errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}.JSON())
	}
}
