// Package imagegen 提供图像生成客户端
package imagegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"z-image-ai-api/internal/application/generation"
	"z-image-ai-api/internal/config"
	wfnode "z-image-ai-api/internal/workflow/node"
	apperrors "z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
	"z-image-ai-api/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// Client 基于 OpenAI Images API 的图像生成器。
// 瞬时错误按指数退避重试，内容安全类错误立即失败。
type Client struct {
	opts  []option.RequestOption
	model string
	size  string

	maxAttempts int
	backoff     config.BackoffConfig
	timeout     time.Duration
}

// NewClient 创建图像生成客户端
func NewClient(cfg *config.ImageGenConfig) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("imagegen api_key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff.Initial <= 0 {
		backoff.Initial = defaultBackoff
	}
	if backoff.Max <= 0 {
		backoff.Max = defaultMaxBackoff
	}
	if backoff.Multiplier <= 1 {
		backoff.Multiplier = 2
	}

	return &Client{
		opts:        opts,
		model:       cfg.Model,
		size:        cfg.Size,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		timeout:     cfg.Timeout,
	}, nil
}

// Generate 生成一批候选图，全部尝试失败后返回最后一个错误
func (c *Client) Generate(ctx context.Context, params *generation.GenerateParams) ([]*generation.GeneratedCandidate, error) {
	if params == nil || strings.TrimSpace(params.Prompt) == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "prompt cannot be empty")
	}

	model := strings.TrimSpace(params.Model)
	if model == "" {
		model = c.model
	}
	size := strings.TrimSpace(params.Size)
	if size == "" {
		size = c.size
	}
	count := params.Count
	if count < 1 {
		count = 1
	}

	prompt := params.Prompt
	if strings.TrimSpace(params.NegativePrompt) != "" {
		prompt = fmt.Sprintf("%s\n\nAvoid: %s", prompt, strings.TrimSpace(params.NegativePrompt))
	}

	var lastErr error
	wait := c.backoff.Initial
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		candidates, err := c.generateOnce(ctx, prompt, model, size, params.Quality, params.Style, count)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		metrics.ImageGenerationsTotal.WithLabelValues(model, "error").Inc()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if wfnode.IsContentPolicyError(err) || !wfnode.IsRetryableLLMError(err) {
			break
		}

		logger.Warn(ctx, "image generation failed, retrying after backoff",
			"request_id", params.RequestID,
			"iteration", params.IterationNumber,
			"attempt", attempt,
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * c.backoff.Multiplier)
		if wait > c.backoff.Max {
			wait = c.backoff.Max
		}
	}
	return nil, apperrors.Wrap(lastErr, apperrors.CodeImageGenError, "image generation failed")
}

func (c *Client) generateOnce(ctx context.Context, prompt, model, size, quality, style string, count int) ([]*generation.GeneratedCandidate, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	client := openai.NewClient(c.opts...)

	req := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(model),
		N:              openai.Int(int64(count)),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	}
	if size != "" {
		req.Size = openai.ImageGenerateParamsSize(size)
	}
	if quality != "" {
		req.Quality = openai.ImageGenerateParamsQuality(quality)
	}
	if style != "" {
		req.Style = openai.ImageGenerateParamsStyle(style)
	}

	resp, err := client.Images.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty image response")
	}

	width, height := parseSize(size)
	out := make([]*generation.GeneratedCandidate, 0, len(resp.Data))
	for _, d := range resp.Data {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		out = append(out, &generation.GeneratedCandidate{
			URL:      d.URL,
			Width:    width,
			Height:   height,
			MimeType: "image/png",
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("image response has no usable urls")
	}

	metrics.ImageGenerationsTotal.WithLabelValues(model, "ok").Inc()
	metrics.ImageGenerationDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	return out, nil
}

// parseSize 解析 "1024x1024" 形式的尺寸串；解析失败返回 0（宽高未知）
func parseSize(size string) (int, int) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(size)), "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	var w, h int
	if _, err := fmt.Sscanf(parts[0], "%d", &w); err != nil {
		return 0, 0
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &h); err != nil {
		return 0, 0
	}
	return w, h
}
