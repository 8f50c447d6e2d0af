package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JSON200(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func JSON201(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func JSON202(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

func JSON400(c *gin.Context, message string) {
	JSONError(c, http.StatusBadRequest, "", message)
}

func JSON401(c *gin.Context, message string) {
	JSONError(c, http.StatusUnauthorized, "", message)
}

func JSON403(c *gin.Context, message string) {
	JSONError(c, http.StatusForbidden, "", message)
}

func JSON404(c *gin.Context, message string) {
	JSONError(c, http.StatusNotFound, "", message)
}

func JSON500(c *gin.Context, message string) {
	JSONError(c, http.StatusInternalServerError, "", message)
}

// JSONError writes an error body with an optional machine readable code.
func JSONError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code})
}
