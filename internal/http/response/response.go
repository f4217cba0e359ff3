package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/platform/apierr"
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	c.JSON(status, ErrorBody{Error: msg, Code: code})
}

// RespondErr derives status and code from an apierr in err's chain.
// Anything else is reported as a 500 internal_error.
func RespondErr(c *gin.Context, err error) {
	RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err), err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
