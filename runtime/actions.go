package runtime

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/personaflow/parsing"
	"github.com/BaSui01/personaflow/types"
)

// normalizeActionName 折叠大小写、下划线和空白, 让 "continue"、
// "CONTINUE"、"Continue_Conversation" 都能对上号.
func normalizeActionName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, " ", "")
	return name
}

// findAction 按归一化名字匹配动作: 先精确比对名字和 similes,
// 再退到双向子串匹配, 第一个命中即返回.
func (r *AgentRuntime) findAction(name string) *types.Action {
	normalized := normalizeActionName(name)
	if normalized == "" {
		return nil
	}

	for i := range r.actions {
		if normalizeActionName(r.actions[i].Name) == normalized {
			return &r.actions[i]
		}
		for _, simile := range r.actions[i].Similes {
			if normalizeActionName(simile) == normalized {
				return &r.actions[i]
			}
		}
	}
	// 包含匹配双向生效: 模型可能输出动作名的片段, 也可能附带多余前后缀
	for i := range r.actions {
		if containsEitherWay(normalizeActionName(r.actions[i].Name), normalized) {
			return &r.actions[i]
		}
		for _, simile := range r.actions[i].Similes {
			if containsEitherWay(normalizeActionName(simile), normalized) {
				return &r.actions[i]
			}
		}
	}
	return nil
}

func containsEitherWay(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// ProcessActions 处理模型回复里的 action 字段: 归一化名字、匹配注册
// 的动作并调用其 handler. 没有匹配或匹配的动作没有 handler 都只记
// 日志, 不中断对话轮次.
func (r *AgentRuntime) ProcessActions(ctx context.Context, message *types.Memory, responses []types.Memory, state *types.State, callback types.HandlerCallback) error {
	for _, response := range responses {
		name := response.Content.Action
		if name == "" || strings.EqualFold(name, "NONE") {
			continue
		}

		action := r.findAction(name)
		if action == nil {
			r.logger.Warn("未找到匹配的动作", zap.String("action", name))
			continue
		}
		if action.Handler == nil {
			r.logger.Warn("动作没有 handler, 已跳过", zap.String("action", action.Name))
			continue
		}

		r.logger.Debug("执行动作", zap.String("action", action.Name))
		if err := action.Handler(ctx, r, *message, state, nil, callback); err != nil {
			r.logger.Error("动作执行失败",
				zap.String("action", action.Name),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

// Evaluate 在一轮对话结束后运行评估器:
//  1. 跑每个评估器的 validate, 只保留通过的; 没产生回复的轮次只考虑
//     AlwaysRun 评估器
//  2. 让模型从候选里挑出真正相关的
//  3. 按模型给出的顺序依次同步执行 handler, 保证副作用顺序可控
//
// 返回被执行的评估器名字.
func (r *AgentRuntime) Evaluate(ctx context.Context, message *types.Memory, state *types.State, didRespond bool) ([]string, error) {
	candidates := make([]types.Evaluator, 0, len(r.evaluators))
	for _, e := range r.evaluators {
		if !didRespond && !e.AlwaysRun {
			continue
		}
		if e.Validate != nil {
			ok, err := e.Validate(ctx, r, *message, state)
			if err != nil {
				r.logger.Warn("评估器校验失败",
					zap.String("evaluator", e.Name),
					zap.Error(err),
				)
				continue
			}
			if !ok {
				continue
			}
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt := renderTemplate(evaluationTemplate, map[string]any{
		"evaluators":        formatEvaluators(candidates),
		"evaluatorNames":    formatEvaluatorNames(candidates),
		"evaluatorExamples": formatEvaluatorExamples(candidates),
		"recentMessages":    state.RecentMessages,
	})

	selected, err := r.client.GenerateTextArray(ctx, prompt)
	if err != nil {
		return nil, err
	}

	executed := make([]string, 0, len(selected))
	for _, name := range selected {
		var evaluator *types.Evaluator
		for i := range candidates {
			if strings.EqualFold(candidates[i].Name, strings.TrimSpace(name)) {
				evaluator = &candidates[i]
				break
			}
		}
		if evaluator == nil {
			r.logger.Debug("模型选择了未注册的评估器", zap.String("evaluator", name))
			continue
		}
		if evaluator.Handler == nil {
			continue
		}
		// 副作用按模型给出的顺序串行执行
		if err := evaluator.Handler(ctx, r, *message, state, nil, nil); err != nil {
			r.logger.Error("评估器执行失败",
				zap.String("evaluator", evaluator.Name),
				zap.Error(err),
			)
			return executed, err
		}
		executed = append(executed, evaluator.Name)
	}
	return executed, nil
}

// ShouldRespond 判断 agent 是否应当回应这条消息.
func (r *AgentRuntime) ShouldRespond(ctx context.Context, state *types.State) (string, error) {
	prompt := renderTemplate(shouldRespondTemplate, state.Placeholders())
	return r.client.GenerateShouldRespond(ctx, prompt)
}

// 保证和 parsing 包的指令常量一致, 供调用方比较.
const (
	DecisionRespond = parsing.Respond
	DecisionIgnore  = parsing.Ignore
	DecisionStop    = parsing.Stop
)
