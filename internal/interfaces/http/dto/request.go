// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"z-image-ai-api/internal/application/generation"
	"z-image-ai-api/internal/domain/entity"
)

// ImageParamsDTO 图像生成参数
type ImageParamsDTO struct {
	ImagesPerGeneration int    `json:"images_per_generation,omitempty"`
	Model               string `json:"model,omitempty"`
	Size                string `json:"size,omitempty"`
	Quality             string `json:"quality,omitempty"`
	Style               string `json:"style,omitempty"`
}

// CreateGenerationRequest 创建生成请求
type CreateGenerationRequest struct {
	ProjectID          string          `json:"project_id,omitempty"`
	Brief              string          `json:"brief" binding:"required"`
	NegativePrompts    string          `json:"negative_prompts,omitempty"`
	ReferenceImageURLs []string        `json:"reference_image_urls,omitempty"`
	JudgeIDs           []string        `json:"judge_ids" binding:"required,min=1"`
	Threshold          int             `json:"threshold" binding:"required,min=0,max=100"`
	MaxIterations      int             `json:"max_iterations" binding:"required,min=1"`
	ImageParams        *ImageParamsDTO `json:"image_params,omitempty"`
}

// ToCreateInput 转换为应用层输入
func (r *CreateGenerationRequest) ToCreateInput() *generation.CreateRequestInput {
	in := &generation.CreateRequestInput{
		ProjectID:          r.ProjectID,
		Brief:              r.Brief,
		NegativePrompts:    r.NegativePrompts,
		ReferenceImageURLs: r.ReferenceImageURLs,
		JudgeIDs:           r.JudgeIDs,
		Threshold:          r.Threshold,
		MaxIterations:      r.MaxIterations,
		ImagesPerGeneration: 1,
	}
	if r.ImageParams != nil {
		if r.ImageParams.ImagesPerGeneration > 0 {
			in.ImagesPerGeneration = r.ImageParams.ImagesPerGeneration
		}
		in.Model = r.ImageParams.Model
		in.Size = r.ImageParams.Size
		in.Quality = r.ImageParams.Quality
		in.Style = r.ImageParams.Style
	}
	return in
}

// GenerationRequestResponse 生成请求响应
type GenerationRequestResponse struct {
	Request          *entity.GenerationRequest `json:"request"`
	EstimatedCostUSD float64                   `json:"estimated_cost_usd,omitempty"`
	PricingVersion   string                    `json:"pricing_version,omitempty"`
}

// CancelRequestResponse 取消请求响应
type CancelRequestResponse struct {
	ID              string `json:"id"`
	CancelRequested bool   `json:"cancel_requested"`
}

// GenerationRequestListResponse 生成请求列表响应
type GenerationRequestListResponse struct {
	Requests []*entity.GenerationRequest `json:"requests"`
}

// ImageListResponse 候选图像列表响应
type ImageListResponse struct {
	Images []*entity.GeneratedImage `json:"images"`
}
