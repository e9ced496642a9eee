package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"VoiceboxStudio/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: message, Data: data})
}

// Created 创建成功响应
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: message, Data: data})
}

// Accepted 已接受（异步任务）
func Accepted(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusAccepted, Response{Code: 0, Message: message, Data: data})
}

// Fail 失败响应，HTTP 状态码由业务错误码映射得到
func Fail(c *gin.Context, err error) {
	code := errors.GetCode(err)
	c.JSON(errors.HTTPStatus(code), Response{Code: code, Message: errors.GetMessage(err)})
}

// FailWith 以指定 HTTP 状态码返回失败响应
func FailWith(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Code: status, Message: message})
}
