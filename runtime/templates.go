package runtime

import (
	"fmt"
	"strings"
)

// renderTemplate 把 {{key}} 占位符替换成对应的值. 缺失的键替换成
// 空字符串, 模板永远不会渲染出裸占位符.
func renderTemplate(template string, values map[string]any) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{{"+key+"}}", fmt.Sprint(value))
	}
	// 清掉没有对应值的占位符
	for {
		start := strings.Index(out, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "}}")
		if end < 0 {
			break
		}
		out = out[:start] + out[start+end+2:]
	}
	return out
}

// shouldRespondTemplate 询问模型是否回应当前消息.
const shouldRespondTemplate = `# Task: Decide whether {{agentName}} should respond.

About {{agentName}}:
{{bio}}

# Recent conversation:
{{recentMessages}}

# INSTRUCTIONS: Respond with [RESPOND] if {{agentName}} should reply to the last message, [IGNORE] if it should stay silent, or [STOP] if it should leave the conversation.`

// evaluationTemplate 让模型从候选评估器里挑出相关的.
const evaluationTemplate = `# Task: Decide which evaluators should run for this conversation.

Available evaluators:
{{evaluators}}

Examples:
{{evaluatorExamples}}

# Recent conversation:
{{recentMessages}}

# INSTRUCTIONS: Reply with a JSON array containing the names of the evaluators that are relevant, chosen from: {{evaluatorNames}}. Reply with [] if none apply.`

// messageHandlerTemplate 生成对话回复.
const messageHandlerTemplate = `# Task: Generate a reply in the voice and style of {{agentName}}.

About {{agentName}}:
{{bio}}

{{lore}}

{{knowledge}}

# Message directions for {{agentName}}:
{{messageDirections}}

# Example conversations:
{{characterMessageExamples}}

# Actors in the scene:
{{actors}}

{{goals}}

{{providers}}

# Available actions: {{actionNames}}
{{actions}}

# Recent conversation:
{{recentMessages}}

{{attachments}}

# INSTRUCTIONS: Reply with a JSON object: {"text": "<the reply>", "action": "<one of the available actions or NONE>"}.`

// MessageHandlerPrompt 用合成好的状态渲染标准回复模板.
func MessageHandlerPrompt(placeholders map[string]any) string {
	return renderTemplate(messageHandlerTemplate, placeholders)
}
