// Package document 实现 Agent 参考资料的上传、分块与向量索引
package document

import (
	"context"
	"strings"

	"z-image-ai-api/internal/application/retrieval"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	apperrors "z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
)

// UploadInput 文档上传输入；Content 为解析后的纯文本
type UploadInput struct {
	AgentID  string
	Filename string
	MimeType string
	Content  string

	// ChunkRunes/ChunkOverlap 为 0 时使用默认分块参数
	ChunkRunes   int
	ChunkOverlap int
}

// UploadResult 上传结果
type UploadResult struct {
	Document *entity.AgentDocument `json:"document"`
	Replaced bool                  `json:"replaced"`
	Stats    *retrieval.IndexStats `json:"stats,omitempty"`
}

// Service 文档管理应用服务
type Service struct {
	agentRepo repository.AgentRepository
	docRepo   repository.DocumentRepository
	indexer   *retrieval.Indexer
}

func NewService(agentRepo repository.AgentRepository, docRepo repository.DocumentRepository, indexer *retrieval.Indexer) *Service {
	return &Service{
		agentRepo: agentRepo,
		docRepo:   docRepo,
		indexer:   indexer,
	}
}

// Upload 上传文档：同名文档替换内容并重建向量，否则新建。
// 数据库先行落盘，向量索引失败不回滚文本（重传可修复）。
func (s *Service) Upload(ctx context.Context, in *UploadInput) (*UploadResult, error) {
	if in == nil {
		return nil, apperrors.ErrInvalidParam
	}
	agentID := strings.TrimSpace(in.AgentID)
	filename := strings.TrimSpace(in.Filename)
	if agentID == "" || filename == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "agent_id and filename are required")
	}

	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, apperrors.ErrAgentNotFound.WithDetail(agentID)
	}

	chunkRunes := in.ChunkRunes
	if chunkRunes <= 0 {
		chunkRunes = retrieval.DefaultChunkRunes
	}
	chunkOverlap := in.ChunkOverlap
	if chunkOverlap < 0 {
		chunkOverlap = retrieval.DefaultChunkOverlap
	}
	pieces := retrieval.SplitChunks(in.Content, chunkRunes, chunkOverlap)
	if len(pieces) == 0 {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "document content is empty")
	}
	chunks := make([]entity.DocumentChunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, entity.DocumentChunk{Content: p})
	}

	existing, err := s.docRepo.GetByAgentAndFilename(ctx, agentID, filename)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{}
	if existing != nil {
		if err := existing.Replace(chunks); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeValidationFailed, "replace document failed")
		}
		existing.MimeType = strings.TrimSpace(in.MimeType)
		if err := s.docRepo.Update(ctx, existing); err != nil {
			return nil, err
		}
		result.Document = existing
		result.Replaced = true
	} else {
		doc, err := entity.NewAgentDocument(agentID, filename, strings.TrimSpace(in.MimeType), chunks)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeValidationFailed, "create document failed")
		}
		if err := s.docRepo.Create(ctx, doc); err != nil {
			return nil, err
		}
		result.Document = doc
	}

	if s.indexer.Enabled() {
		stats, err := s.indexer.IndexDocument(ctx, result.Document)
		if err != nil {
			// 文本已落库，索引失败只告警；该文档在修复前不参与检索
			logger.Error(ctx, "failed to index document", err,
				"agent_id", agentID,
				"document_id", result.Document.ID,
			)
			return result, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "index document failed")
		}
		result.Stats = stats
		// 索引过程可能补齐分块 ID，回写一次
		if err := s.docRepo.Update(ctx, result.Document); err != nil {
			logger.Warn(ctx, "failed to persist chunk ids", "document_id", result.Document.ID, "error", err.Error())
		}
	}

	logger.Info(ctx, "document uploaded",
		"agent_id", agentID,
		"document_id", result.Document.ID,
		"chunks", result.Document.ChunkCount,
		"replaced", result.Replaced,
	)
	return result, nil
}

// Get 按 ID 查询文档
func (s *Service) Get(ctx context.Context, id string) (*entity.AgentDocument, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperrors.ErrDocumentNotFound.WithDetail(id)
	}
	return doc, nil
}

// ListByAgent 列出 Agent 的全部文档
func (s *Service) ListByAgent(ctx context.Context, agentID string) ([]*entity.AgentDocument, error) {
	return s.docRepo.ListByAgent(ctx, agentID)
}

// Delete 删除文档及其向量
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperrors.ErrDocumentNotFound.WithDetail(id)
	}
	if s.indexer.Enabled() {
		if err := s.indexer.RemoveDocument(ctx, doc.AgentID, doc.ID); err != nil {
			return apperrors.Wrap(err, apperrors.CodeVectorDBError, "remove document vectors failed")
		}
	}
	return s.docRepo.Delete(ctx, id)
}
