package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
	"moff.io/wallet-pairing/pkg/log/meta"
)

const requestIDHeader = "x-request-id"

// responseBodyWriter keeps a copy of the handler response for the access log.
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r responseBodyWriter) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

type httpInfo struct {
	RequestID     string            `json:"request_id"`
	Headers       map[string]string `json:"headers"`
	Method        string            `json:"method"`
	RequestAPI    string            `json:"request_api,omitempty"`
	RemoteAddr    string            `json:"remote_addr,omitempty"`
	Response      *response         `json:"response,omitempty"`
	ExecutionTime string            `json:"execution_time,omitempty"`
}

func (in *httpInfo) String() string {
	data, _ := json.Marshal(in)
	return string(data)
}

// RecoveredHTTPLog logs every request with its response code and latency,
// and turns handler panics into reported 500 responses.
func RecoveredHTTPLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rctx := meta.Begin(ctx.Request.Context())
		requestID := ctx.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		meta.WithRequestID(rctx, requestID)
		ctx.Request = ctx.Request.WithContext(rctx)
		ctx.Header(requestIDHeader, requestID)

		w := &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: ctx.Writer}
		ctx.Writer = w

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error(errors.ErrorfAndReport("%v", r))
			}
			logHTTP(ctx, w, start)
		}()
		ctx.Next()
	}
}

const defaultRequestTimeout = time.Second * 60

// TimeoutHTTP bounds the request context, 60s unless a positive timeout is given.
func TimeoutHTTP(timeout ...time.Duration) gin.HandlerFunc {
	d := defaultRequestTimeout
	if len(timeout) != 0 && timeout[0] > 0 {
		d = timeout[0]
	}
	return func(ctx *gin.Context) {
		timeoutCtx, cancel := context.WithTimeout(ctx.Request.Context(), d)
		defer cancel()
		ctx.Request = ctx.Request.WithContext(timeoutCtx)
		ctx.Next()
	}
}

func logHTTP(ctx *gin.Context, w *responseBodyWriter, start time.Time) {
	if !ctx.Writer.Written() {
		ctx.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code": 5000,
			"msg":  "Server internal error",
		})
	}
	s := w.Status()
	info := &httpInfo{
		RequestID:     meta.RequestID(ctx.Request.Context()),
		Headers:       requestHeaderFilter(ctx.Request.Header),
		Method:        ctx.Request.Method,
		RequestAPI:    ctx.Request.RequestURI,
		RemoteAddr:    ctx.ClientIP(),
		Response:      decodeHandlerResponse(w.body.Bytes(), s),
		ExecutionTime: fmt.Sprintf("%vms", time.Since(start).Milliseconds()),
	}
	switch {
	case s < http.StatusBadRequest:
		log.Info(info)
	case s >= http.StatusInternalServerError:
		log.Error(info)
	default:
		log.Warn(info)
	}
}

type response struct {
	ProtocolCode int         `json:"protocol_code"`
	Code         interface{} `json:"code,omitempty"`
	Message      interface{} `json:"msg,omitempty"`
}

func decodeHandlerResponse(respBody []byte, httpCode int) *response {
	resp := response{ProtocolCode: httpCode}
	_ = json.Unmarshal(respBody, &resp)
	return &resp
}

var excludedHeaders = map[string]bool{
	"token":         true,
	"access-token":  true,
	"authorization": true,
	"cookie":        true,
}

func requestHeaderFilter(headers map[string][]string) map[string]string {
	filtered := make(map[string]string)
	for k, v := range headers {
		k = strings.ToLower(k)
		if excludedHeaders[k] {
			continue
		}
		filtered[k] = strings.Join(v, ";")
	}
	return filtered
}
