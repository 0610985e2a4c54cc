package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/personaflow/types"
)

// hiddenAttachmentMarker 替换超过可见窗口的附件内容.
const hiddenAttachmentMarker = "[Hidden content, attachment is too old]"

// attachmentVisibility 是附件保持可见的时间窗口.
const attachmentVisibility = time.Hour

// 示例对话里替换占位用户名的名字池.
var exampleNamePool = []string{
	"Alex", "Jordan", "Casey", "Riley", "Morgan",
	"Taylor", "Quinn", "Avery", "Dana", "Remy",
}

func formatActors(actors []types.Actor) string {
	lines := make([]string, 0, len(actors))
	for _, a := range actors {
		line := a.Name
		if a.Details != "" {
			line += ": " + a.Details
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func actorName(actors []types.Actor, id types.UUID) string {
	for _, a := range actors {
		if a.ID == id {
			return a.Name
		}
	}
	return "Unknown User"
}

// formatMessages 把记忆渲染成聊天转写, 旧的在前.
func formatMessages(messages []types.Memory, actors []types.Actor) string {
	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		line := fmt.Sprintf("%s: %s", actorName(actors, m.UserID), m.Content.Text)
		if m.Content.Action != "" && m.Content.Action != "NONE" {
			line += fmt.Sprintf(" (%s)", m.Content.Action)
		}
		for _, att := range m.Content.Attachments {
			line += fmt.Sprintf(" [Attachment: %s]", att.Title)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// formatPosts 把记忆渲染成帖子视图, 新的在前.
func formatPosts(messages []types.Memory, actors []types.Actor) string {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Content.Text == "" {
			continue
		}
		name := actorName(actors, m.UserID)
		blocks = append(blocks, fmt.Sprintf("Name: %s\nText: %s", name, m.Content.Text))
	}
	return strings.Join(blocks, "\n---\n")
}

// formatGoals 渲染目标清单, 已完成的目标项打勾.
func formatGoals(goals []types.Goal) string {
	lines := make([]string, 0, len(goals))
	for _, g := range goals {
		lines = append(lines, fmt.Sprintf("Goal: %s (%s)", g.Name, g.Status))
		for _, o := range g.Objectives {
			mark := "[ ]"
			if o.Completed {
				mark = "[x]"
			}
			lines = append(lines, fmt.Sprintf("  %s %s", mark, o.Description))
		}
	}
	return strings.Join(lines, "\n")
}

// redactOldAttachments 把比最新带附件消息早一小时以上的附件内容替换
// 成隐藏标记. 返回格式化后的附件清单.
func redactOldAttachments(messages []types.Memory) string {
	var latest time.Time
	for _, m := range messages {
		if len(m.Content.Attachments) > 0 && m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	if latest.IsZero() {
		return ""
	}
	cutoff := latest.Add(-attachmentVisibility)

	lines := make([]string, 0)
	for _, m := range messages {
		for _, att := range m.Content.Attachments {
			text := att.Text
			if m.CreatedAt.Before(cutoff) {
				text = hiddenAttachmentMarker
			}
			lines = append(lines, fmt.Sprintf("ID: %s\nName: %s\nURL: %s\nDescription: %s\nText: %s",
				att.ID, att.Title, att.URL, att.Description, text))
		}
	}
	return strings.Join(lines, "\n\n")
}

// sampleStrings 随机取最多 max 个元素, 保持相对顺序.
func (r *AgentRuntime) sampleStrings(items []string, max int) []string {
	if len(items) <= max {
		out := make([]string, len(items))
		copy(out, items)
		return out
	}
	picked := make(map[int]struct{}, max)
	for len(picked) < max {
		picked[r.intn(len(items))] = struct{}{}
	}
	out := make([]string, 0, max)
	for i, item := range items {
		if _, ok := picked[i]; ok {
			out = append(out, item)
		}
	}
	return out
}

// formatMessageExamples 渲染示例对话, 把 {{user1}} 之类的占位名替换成
// 随机名字, 避免示例每轮长得一模一样.
func (r *AgentRuntime) formatMessageExamples(examples [][]types.MessageExample) string {
	blocks := make([]string, 0, len(examples))
	for _, conversation := range examples {
		names := make(map[string]string)
		lines := make([]string, 0, len(conversation))
		for _, turn := range conversation {
			user := turn.User
			if strings.HasPrefix(user, "{{") && strings.HasSuffix(user, "}}") {
				if _, ok := names[user]; !ok {
					names[user] = exampleNamePool[r.intn(len(exampleNamePool))]
				}
				user = names[user]
			}
			text := turn.Content.Text
			for placeholder, name := range names {
				text = strings.ReplaceAll(text, placeholder, name)
			}
			lines = append(lines, fmt.Sprintf("%s: %s", user, text))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// ---- 能力区块 ----

func formatActionNames(actions []types.Action) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func formatActions(actions []types.Action) string {
	lines := make([]string, len(actions))
	for i, a := range actions {
		lines[i] = fmt.Sprintf("%s: %s", a.Name, a.Description)
	}
	return strings.Join(lines, "\n")
}

func formatActionExamples(actions []types.Action) string {
	blocks := make([]string, 0)
	for _, a := range actions {
		for _, conversation := range a.Examples {
			lines := make([]string, 0, len(conversation))
			for _, turn := range conversation {
				line := fmt.Sprintf("%s: %s", turn.User, turn.Content.Text)
				if turn.Content.Action != "" {
					line += fmt.Sprintf(" (%s)", turn.Content.Action)
				}
				lines = append(lines, line)
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func formatEvaluatorNames(evaluators []types.Evaluator) string {
	names := make([]string, len(evaluators))
	for i, e := range evaluators {
		names[i] = e.Name
	}
	return strings.Join(names, ", ")
}

func formatEvaluators(evaluators []types.Evaluator) string {
	lines := make([]string, len(evaluators))
	for i, e := range evaluators {
		lines[i] = fmt.Sprintf("%s: %s", e.Name, e.Description)
	}
	return strings.Join(lines, "\n")
}

func formatEvaluatorExamples(evaluators []types.Evaluator) string {
	blocks := make([]string, 0)
	for _, e := range evaluators {
		for _, ex := range e.Examples {
			block := fmt.Sprintf("Context: %s\nMessages:\n%s\nOutcome: %s",
				ex.Context, strings.Join(ex.Messages, "\n"), ex.Outcome)
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func formatKnowledge(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}
