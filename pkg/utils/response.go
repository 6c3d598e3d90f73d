package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorBody 是所有错误响应的 JSON 结构
type ErrorBody struct {
	Error string `json:"error"`
}

var internalErrorBody = []byte(`{"error":"internal error"}` + "\n")

// RespondJSON 先完整编码 payload 再写出；编码失败时改回 500，避免写出半截响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("encode response failed", zap.Int("status", status), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, internalErrorBody)
		return
	}
	writeJSON(w, status, append(body, '\n'))
}

// RespondError 写出错误响应并记录一条日志：5xx 记为 Error，其余为 Warn。
// logger 为空时使用全局 logger。
func RespondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, status int, message string, fields ...zap.Field) {
	if logger == nil {
		logger = zap.L()
	}
	fields = append(fields,
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	if status >= http.StatusInternalServerError {
		logger.Error(message, fields...)
	} else {
		logger.Warn(message, fields...)
	}
	RespondJSON(w, status, ErrorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}
