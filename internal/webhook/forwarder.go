package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/BaSui01/llmcouncil/config"
	"github.com/BaSui01/llmcouncil/internal/tlsutil"
	"github.com/BaSui01/llmcouncil/llm/retry"
	"github.com/BaSui01/llmcouncil/types"
	"go.uber.org/zap"
)

// 错误响应体最多读取的字节数
const maxErrorBody = 4 << 10

var (
	// ErrNameRequired 姓名为空
	ErrNameRequired = errors.New("name is required")
	// ErrPhoneRequired 电话为空或不含数字
	ErrPhoneRequired = errors.New("phone number is required")
)

// StatusError 是 webhook 返回非 2xx 时的错误
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if body == "" {
		body = "sin contenido"
	}
	return fmt.Sprintf("Webhook error %d: %s", e.StatusCode, body)
}

// DeliveryObserver 接收每次投递的 HTTP 状态，传输失败时为 0
type DeliveryObserver interface {
	RecordWebhookDelivery(status int)
}

// NewProfile 清洗表单输入：去掉首尾空白，电话只保留数字，
// fullNumber = countryCode + 数字。
func NewProfile(name, countryCode, phoneNumber string) (types.UserProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.UserProfile{}, ErrNameRequired
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phoneNumber)
	if digits == "" {
		return types.UserProfile{}, ErrPhoneRequired
	}
	countryCode = strings.TrimFunc(countryCode, unicode.IsSpace)
	return types.UserProfile{
		Name:        name,
		CountryCode: countryCode,
		PhoneNumber: digits,
		FullNumber:  countryCode + digits,
	}, nil
}

// Forwarder 把用户资料 POST 到配置的 webhook
type Forwarder struct {
	url      string
	client   *http.Client
	retryer  *retry.Retryer
	observer DeliveryObserver
	logger   *zap.Logger
}

// New 创建 Forwarder。URL 为空时 Forward 只记录日志。observer 可为空。
func New(cfg config.WebhookConfig, observer DeliveryObserver, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger = logger.With(zap.String("component", "webhook"))

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.InitialDelay = 200 * time.Millisecond
	policy.MaxDelay = 2 * time.Second
	policy.ShouldRetry = isRetryable

	return &Forwarder{
		url:      strings.TrimSpace(cfg.UserDataURL),
		client:   tlsutil.SecureHTTPClient(cfg.Timeout),
		retryer:  retry.New(policy, logger),
		observer: observer,
		logger:   logger,
	}
}

// Enabled 是否配置了目标地址
func (f *Forwarder) Enabled() bool { return f.url != "" }

// Forward 投递资料。连接失败和 5xx 按策略重试，4xx 直接返回 *StatusError。
func (f *Forwarder) Forward(ctx context.Context, profile types.UserProfile) error {
	if !f.Enabled() {
		f.logger.Info("user profile received, webhook not configured",
			zap.String("name", profile.Name),
			zap.String("country_code", profile.CountryCode),
		)
		return nil
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	err = f.retryer.Do(ctx, func(ctx context.Context) error {
		return f.once(ctx, payload)
	})
	if err != nil {
		f.logger.Warn("webhook delivery failed", zap.Error(err))
		return err
	}
	f.logger.Debug("webhook delivered")
	return nil
}

func (f *Forwarder) once(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.record(0)
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	f.record(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (f *Forwarder) record(status int) {
	if f.observer != nil {
		f.observer.RecordWebhookDelivery(status)
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}
