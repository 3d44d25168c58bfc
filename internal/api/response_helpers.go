// internal/api/response_helpers.go
package api

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/gin-gonic/gin"
)

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(http.StatusOK, response)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	}
	if len(message) > 0 {
		response.Message = message[0]
	} else {
		response.Message = "资源创建成功"
	}
	c.JSON(http.StatusCreated, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, "BAD_REQUEST", message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusNotFound, "NOT_FOUND", message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, details...)
}

// FromAppError 按错误分类映射HTTP状态码与错误码
func (rh *ResponseHelper) FromAppError(c *gin.Context, err error) {
	errType := apperrors.TypeOf(err)

	status := http.StatusInternalServerError
	switch errType {
	case apperrors.ErrorTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrorTypeMissingCredential:
		status = http.StatusPreconditionFailed
	case apperrors.ErrorTypeEmptyResponse, apperrors.ErrorTypeMalformedResponse:
		status = http.StatusBadGateway
	}

	rh.Error(c, status, strings.ToUpper(string(errType)), err.Error())
}

// FileResponse 文件下载响应
func (rh *ResponseHelper) FileResponse(c *gin.Context, content, filename, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.String(http.StatusOK, content)
}

// sanitizeErrorMessage 防止敏感信息随错误消息外泄
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "apikey", "secret", "token", "password"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}
