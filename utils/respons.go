package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/mealplan-app/apperr"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: err.Error(),
		Data:    nil,
	})
}

// RespondAppError answers with the status code and kind of err. Errors that
// carry no kind are logged and reported as internal.
func RespondAppError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		ErrorLogger.WithError(err).WithField("path", c.Request.URL.Path).Error("unhandled error")
		c.JSON(http.StatusInternalServerError, JSONResponse{Status: false, Message: "internal server error"})
		return
	}
	if appErr.Kind == apperr.KindNetwork {
		ErrorLogger.WithError(err).WithField("path", c.Request.URL.Path).Error("upstream failure")
	}
	c.JSON(appErr.Kind.HTTPStatus(), JSONResponse{
		Status:  false,
		Message: appErr.Error(),
		Kind:    appErr.Kind.String(),
	})
}
