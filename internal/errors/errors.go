// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 生成链路错误类型
	ErrorTypeMissingCredential ErrorType = "missing_credential" // 未配置可用凭证，禁止发起生成
	ErrorTypeEmptyResponse     ErrorType = "empty_response"     // 生成能力未返回可解析内容
	ErrorTypeMalformedResponse ErrorType = "malformed_response" // 返回内容不符合声明的结构（含时长越界）
	ErrorTypeUnmatchedArtifact ErrorType = "unmatched_artifact" // 响应条目无法对应到既有产物，非致命

	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewMissingCredentialError 创建凭证缺失错误
func NewMissingCredentialError(message string) *AppError {
	return NewAppError(ErrorTypeMissingCredential, message, nil)
}

// NewEmptyResponseError 创建空响应错误
func NewEmptyResponseError(message string) *AppError {
	return NewAppError(ErrorTypeEmptyResponse, message, nil)
}

// NewMalformedResponseError 创建响应结构错误
func NewMalformedResponseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMalformedResponse, message, originalError)
}

// NewUnmatchedArtifactError 创建产物无法对应错误
func NewUnmatchedArtifactError(message string) *AppError {
	return NewAppError(ErrorTypeUnmatchedArtifact, message, nil)
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// TypeOf 返回错误类型，非 AppError 时返回通用处理错误
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ErrorTypeError
}

// IsMissingCredentialError 检查是否为凭证缺失错误
func IsMissingCredentialError(err error) bool {
	return TypeOf(err) == ErrorTypeMissingCredential
}

// IsEmptyResponseError 检查是否为空响应错误
func IsEmptyResponseError(err error) bool {
	return TypeOf(err) == ErrorTypeEmptyResponse
}

// IsMalformedResponseError 检查是否为响应结构错误
func IsMalformedResponseError(err error) bool {
	return TypeOf(err) == ErrorTypeMalformedResponse
}

// IsUnmatchedArtifactError 检查是否为产物无法对应错误
func IsUnmatchedArtifactError(err error) bool {
	return TypeOf(err) == ErrorTypeUnmatchedArtifact
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeMissingCredential:
		return "MISSING_CREDENTIAL"
	case ErrorTypeEmptyResponse:
		return "EMPTY_RESPONSE"
	case ErrorTypeMalformedResponse:
		return "MALFORMED_RESPONSE"
	case ErrorTypeUnmatchedArtifact:
		return "UNMATCHED_ARTIFACT"
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 已经是 AppError 时保留原类型，只叠加消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
