package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptJudgeEvalV1      PromptID = "judge_eval_v1"
	PromptPromptOptimizeV1 PromptID = "prompt_optimize_v1"
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// SystemText 返回模板的 system 段原文（评审多模态消息手工拼装时使用）
func (r *Registry) SystemText(id PromptID) (string, error) {
	systemPath, _, err := resolvePromptFiles(id)
	if err != nil {
		return "", err
	}
	return readEmbeddedText(systemPath)
}

// UserText 返回模板的 user 段原文
func (r *Registry) UserText(id PromptID) (string, error) {
	_, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return "", err
	}
	return readEmbeddedText(userPath)
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptJudgeEvalV1:
		return "templates/judge_eval_v1.system.txt", "templates/judge_eval_v1.user.txt", nil
	case PromptPromptOptimizeV1:
		return "templates/prompt_optimize_v1.system.txt", "templates/prompt_optimize_v1.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
