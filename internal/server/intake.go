package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ingestiondomain "github.com/smallbiznis/revshare/internal/ingestion/domain"
	"github.com/smallbiznis/revshare/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderSignature = "X-Signature"

	maxNotificationBytes = 1 << 20

	rateLimitReasonTenantRate = "tenant-rate"
)

// VerifyIntakeSignature checks "X-Signature: t=<unix>,v1=<hex>" where v1 is
// HMAC-SHA256 over "<t>.<body>". It is a no-op without a signing secret.
func (s *Server) VerifyIntakeSignature() gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(s.cfg.Intake.SigningSecret))
	tolerance := s.cfg.Intake.SignatureTolerance
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}

		body, err := readBody(c)
		if err != nil {
			AbortWithError(c, invalidRequest("body"))
			return
		}

		ts, sig, ok := parseSignatureHeader(c.GetHeader(HeaderSignature))
		if !ok {
			AbortWithError(c, ErrInvalidSignature)
			return
		}
		if tolerance > 0 {
			skew := s.now().Sub(time.Unix(ts, 0))
			if skew < -tolerance || skew > tolerance {
				AbortWithError(c, ErrInvalidSignature)
				return
			}
		}
		if !hmac.Equal(sig, SignNotification(secret, ts, body)) {
			AbortWithError(c, ErrInvalidSignature)
			return
		}
		c.Next()
	}
}

// SignNotification returns the raw v1 MAC for body signed at ts.
func SignNotification(secret []byte, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, []byte, bool) {
	var (
		ts  int64
		sig []byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, false
			}
			ts = parsed
		case "v1":
			decoded, err := hex.DecodeString(value)
			if err != nil {
				return 0, nil, false
			}
			sig = decoded
		}
	}
	return ts, sig, ts > 0 && len(sig) > 0
}

// ReceiveCallNotification is the intake endpoint. Every accepted outcome is
// a 2xx so the upstream system does not redeliver; payload faults are 422.
func (s *Server) ReceiveCallNotification(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		AbortWithError(c, invalidRequest("body"))
		return
	}

	req, rejection := s.ingestionSvc.Decode(body)
	if rejection != nil {
		AbortWithError(c, rejection)
		return
	}
	c.Set("call_id", req.CallID)

	if !s.allowIntake(c, req.TenantID) {
		return
	}

	req.ReceivedAt = s.now().UTC()
	result, err := s.ingestionSvc.Ingest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status == ingestiondomain.StatusRecorded {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result})
}

// allowIntake applies the per-tenant token bucket. A limiter fault lets the
// notification through: dropping revenue is worse than a burst.
func (s *Server) allowIntake(c *gin.Context, tenantID string) bool {
	if s.intakeLimiter == nil || !s.intakeLimiter.Enabled() {
		return true
	}
	ctx := c.Request.Context()
	res, err := s.intakeLimiter.AllowTenant(ctx, tenantID)
	if err != nil {
		logger.FromContext(ctx).Warn("intake rate limit check failed", zap.Error(err))
		return true
	}
	if res.Allowed {
		return true
	}

	endpoint := c.FullPath()
	logger.FromContext(ctx).Warn("intake rate limit exceeded",
		zap.String("reason", rateLimitReasonTenantRate),
		zap.String("endpoint", endpoint),
	)
	s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonTenantRate)

	retryAfter := max(int(res.RetryAfter.Round(time.Second)/time.Second), 1)
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonTenantRate)
	AbortWithError(c, ErrRateLimited)
	return false
}

// readBody buffers the request body and restores it for later handlers.
func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxNotificationBytes {
		return nil, errors.New("request body too large")
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
