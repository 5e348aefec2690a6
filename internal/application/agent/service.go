// Package agent 提供评审/优化 Agent 的管理服务
package agent

import (
	"context"
	"fmt"
	"strings"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	apperrors "z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
)

// Service Agent 管理应用服务
type Service struct {
	agentRepo   repository.AgentRepository
	requestRepo repository.RequestRepository
	tx          repository.Transactor
}

func NewService(agentRepo repository.AgentRepository, requestRepo repository.RequestRepository, tx repository.Transactor) *Service {
	return &Service{
		agentRepo:   agentRepo,
		requestRepo: requestRepo,
		tx:          tx,
	}
}

// Create 创建 Agent；组合型 Agent 的成员必须已存在且不可嵌套组合
func (s *Service) Create(ctx context.Context, agent *entity.Agent) (*entity.Agent, error) {
	if err := s.validate(ctx, agent); err != nil {
		return nil, err
	}
	if err := s.agentRepo.Create(ctx, agent); err != nil {
		return nil, err
	}
	logger.Info(ctx, "agent created", "agent_id", agent.ID, "name", agent.Name)
	return agent, nil
}

// Get 按 ID 查询
func (s *Service) Get(ctx context.Context, id string) (*entity.Agent, error) {
	agent, err := s.agentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, apperrors.ErrAgentNotFound.WithDetail(id)
	}
	return agent, nil
}

// Update 更新 Agent 配置
func (s *Service) Update(ctx context.Context, agent *entity.Agent) (*entity.Agent, error) {
	if agent == nil || strings.TrimSpace(agent.ID) == "" {
		return nil, apperrors.ErrInvalidParam
	}
	existing, err := s.agentRepo.GetByID(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.ErrAgentNotFound.WithDetail(agent.ID)
	}
	if err := s.validate(ctx, agent); err != nil {
		return nil, err
	}
	if err := s.agentRepo.Update(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// Delete 删除 Agent。
// 被非终态请求引用的 Agent 拒绝删除，避免在途评审面板失效。
func (s *Service) Delete(ctx context.Context, id string) error {
	agent, err := s.agentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if agent == nil {
		return apperrors.ErrAgentNotFound.WithDetail(id)
	}

	// 引用检查与删除放同一事务，避免检查后新请求引用该 Agent
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		active, err := s.requestRepo.CountActiveByJudge(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperrors.ErrAgentInUse.WithDetail(fmt.Sprintf("active_requests=%d", active))
		}
		return s.agentRepo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "agent deleted", "agent_id", id)
	return nil
}

// List 按过滤条件分页列出
func (s *Service) List(ctx context.Context, filter *repository.AgentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Agent], error) {
	return s.agentRepo.List(ctx, filter, pagination)
}

func (s *Service) validate(ctx context.Context, agent *entity.Agent) error {
	if agent == nil {
		return apperrors.ErrInvalidParam
	}
	if strings.TrimSpace(agent.Name) == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "name is required")
	}
	if agent.ScoringWeight < 0 || agent.OptimizationWeight < 0 {
		return apperrors.New(apperrors.CodeValidationFailed, "weights cannot be negative")
	}
	if agent.Temperature < 0 || agent.Temperature > 2 {
		return apperrors.New(apperrors.CodeValidationFailed, "temperature must be within [0,2]")
	}
	if agent.RAGConfig != nil {
		if agent.RAGConfig.TopK < 0 {
			return apperrors.New(apperrors.CodeValidationFailed, "rag_config.top_k cannot be negative")
		}
		if agent.RAGConfig.SimilarityThreshold < 0 || agent.RAGConfig.SimilarityThreshold > 1 {
			return apperrors.New(apperrors.CodeValidationFailed, "rag_config.similarity_threshold must be within [0,1]")
		}
	}

	// 组合型 Agent 校验成员存在且不嵌套
	if len(agent.TeamAgentIDs) > 0 {
		members, err := s.agentRepo.GetByIDs(ctx, agent.TeamAgentIDs)
		if err != nil {
			return err
		}
		found := make(map[string]*entity.Agent, len(members))
		for _, m := range members {
			if m != nil {
				found[m.ID] = m
			}
		}
		for _, id := range agent.TeamAgentIDs {
			m, ok := found[id]
			if !ok {
				return apperrors.New(apperrors.CodeValidationFailed, "team member not found").WithDetail(id)
			}
			if m.IsTeam() {
				return apperrors.New(apperrors.CodeValidationFailed, "team member cannot be another team").WithDetail(id)
			}
			if id == agent.ID {
				return apperrors.New(apperrors.CodeValidationFailed, "team cannot contain itself").WithDetail(id)
			}
		}
	}
	return nil
}
