// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers) {
	// 生成请求管理
	requests := v1.Group("/requests")
	{
		requests.POST("", h.Generation.CreateRequest)
		requests.GET("", h.Generation.ListRequests)
		requests.GET("/:rid", h.Generation.GetRequest)
		requests.DELETE("/:rid", h.Generation.CancelRequest)
		requests.GET("/:rid/images", h.Generation.ListImages)
	}

	// Agent 管理
	agents := v1.Group("/agents")
	{
		agents.GET("", h.Agent.ListAgents)
		agents.POST("", h.Agent.CreateAgent)
		agents.GET("/:aid", h.Agent.GetAgent)
		agents.PUT("/:aid", h.Agent.UpdateAgent)
		agents.DELETE("/:aid", h.Agent.DeleteAgent)

		// Agent 下的参考文档
		agents.GET("/:aid/documents", h.Document.ListDocuments)
		agents.POST("/:aid/documents", h.Document.UploadDocument)
	}

	// 文档管理
	documents := v1.Group("/documents")
	{
		documents.GET("/:did", h.Document.GetDocument)
		documents.DELETE("/:did", h.Document.DeleteDocument)
	}

	// 检索调试
	retrieval := v1.Group("/retrieval")
	{
		retrieval.POST("/query", h.Retrieval.Query)
	}

	// 提示词优化器配置
	optimizer := v1.Group("/optimizer")
	{
		optimizer.GET("/config", h.Optimizer.GetConfig)
		optimizer.PUT("/config", h.Optimizer.PutConfig)
	}
}
