package runtime

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// 状态合成里随机采样的上限.
const (
	maxLoreSamples         = 10
	maxExampleConvs        = 5
	maxExamplePosts        = 7
	maxInteractionMessages = 20
)

// ComposeState 为一轮对话构建完整的模板上下文. 互相独立的读取并发
// 执行; 会渲染为空的区块一律给空字符串, 模板可以无条件引用任何键.
// extra 最后合并, 键冲突时覆盖计算出来的值.
func (r *AgentRuntime) ComposeState(ctx context.Context, message *types.Memory, extra map[string]any) (*types.State, error) {
	roomID := message.RoomID
	// 整轮用同一份角色快照, 热更新不会撕裂单次合成
	character := r.Character()

	state := &types.State{
		AgentID:   r.agentID,
		AgentName: character.Name,
		RoomID:    roomID,
		SenderID:  message.UserID,
		System:    character.System,
	}

	var (
		actors         []types.Actor
		recentMessages []types.Memory
		goals          []types.Goal
		knowledgeHits  []string
		interactions   []types.Memory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		actors, err = r.db.GetActorDetails(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		recentMessages, err = r.messages.GetMemories(gctx, roomID, r.conversationLength, false)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = r.db.GetGoals(gctx, roomID, nil, true, 0)
		return err
	})
	g.Go(func() error {
		var err error
		knowledgeHits, err = r.knowledge.Get(gctx, message.Content.Text)
		return err
	})
	g.Go(func() error {
		var err error
		interactions, err = r.recentInteractions(gctx, message.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	state.SenderName = actorName(actors, message.UserID)
	state.ActorsData = actors
	state.Actors = formatActors(actors)
	state.GoalsData = goals
	state.Goals = formatGoals(goals)
	state.RecentMessagesData = recentMessages
	state.RecentMessages = formatMessages(recentMessages, actors)
	state.RecentPosts = formatPosts(recentMessages, actors)
	state.Attachments = redactOldAttachments(recentMessages)
	state.Knowledge = formatKnowledge(knowledgeHits)
	state.RecentMessageInteractions = formatMessages(interactions, actors)
	state.RecentPostInteractions = formatPosts(interactions, actors)

	// 人设区块: 背景与示例随机采样, 保持 prompt 大小稳定且内容轮换
	state.Bio = strings.Join(character.Bio, " ")
	state.Lore = strings.Join(r.sampleStrings(character.Lore, maxLoreSamples), "\n")
	state.Topics = strings.Join(character.Topics, ", ")
	if len(character.Adjectives) > 0 {
		state.Adjective = character.Adjectives[r.intn(len(character.Adjectives))]
	}
	state.MessageDirections = strings.Join(append(append([]string{},
		character.Style.All...), character.Style.Chat...), "\n")
	state.PostDirections = strings.Join(append(append([]string{},
		character.Style.All...), character.Style.Post...), "\n")
	state.CharacterMessageExamples = r.formatMessageExamples(r.sampleExampleConversations(character, maxExampleConvs))
	state.CharacterPostExamples = strings.Join(r.sampleStrings(character.PostExamples, maxExamplePosts), "\n")

	if err := r.composeCapabilitySections(ctx, message, state); err != nil {
		return nil, err
	}

	state.Extra = extra
	return state, nil
}

// sampleExampleConversations 随机取最多 max 组示例对话.
func (r *AgentRuntime) sampleExampleConversations(character *types.Character, max int) [][]types.MessageExample {
	examples := character.MessageExamples
	if len(examples) <= max {
		return examples
	}
	picked := make(map[int]struct{}, max)
	for len(picked) < max {
		picked[r.intn(len(examples))] = struct{}{}
	}
	out := make([][]types.MessageExample, 0, max)
	for i, ex := range examples {
		if _, ok := picked[i]; ok {
			out = append(out, ex)
		}
	}
	return out
}

// recentInteractions 取发送者和 agent 在所有共同房间里最近的互动.
func (r *AgentRuntime) recentInteractions(ctx context.Context, senderID types.UUID) ([]types.Memory, error) {
	if senderID == (types.UUID{}) || senderID == r.agentID {
		return nil, nil
	}
	rooms, err := r.db.GetRoomsForParticipant(ctx, senderID)
	if err != nil {
		return nil, err
	}

	all := make([]types.Memory, 0)
	for _, roomID := range rooms {
		participants, err := r.db.GetParticipantsForRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		shared := false
		for _, p := range participants {
			if p == r.agentID {
				shared = true
				break
			}
		}
		if !shared {
			continue
		}
		msgs, err := r.messages.GetMemories(ctx, roomID, maxInteractionMessages, false)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > maxInteractionMessages {
		all = all[:maxInteractionMessages]
	}
	return all, nil
}

// composeCapabilitySections 并发跑所有能力的 validate 和所有提供者的
// get, 汇总成当前可用的动作/评估器/提供者区块.
func (r *AgentRuntime) composeCapabilitySections(ctx context.Context, message *types.Memory, state *types.State) error {
	availableActions := make([]bool, len(r.actions))
	availableEvaluators := make([]bool, len(r.evaluators))
	providerSections := make([]string, len(r.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.actions {
		g.Go(func() error {
			if r.actions[i].Validate == nil {
				availableActions[i] = true
				return nil
			}
			ok, err := r.actions[i].Validate(gctx, r, *message, state)
			if err != nil {
				r.logger.Warn("动作校验失败",
					zap.String("action", r.actions[i].Name),
					zap.Error(err),
				)
				return nil
			}
			availableActions[i] = ok
			return nil
		})
	}
	for i := range r.evaluators {
		g.Go(func() error {
			if r.evaluators[i].Validate == nil {
				availableEvaluators[i] = true
				return nil
			}
			ok, err := r.evaluators[i].Validate(gctx, r, *message, state)
			if err != nil {
				r.logger.Warn("评估器校验失败",
					zap.String("evaluator", r.evaluators[i].Name),
					zap.Error(err),
				)
				return nil
			}
			availableEvaluators[i] = ok
			return nil
		})
	}
	for i := range r.providers {
		g.Go(func() error {
			section, err := r.providers[i].Get(gctx, r, *message, state)
			if err != nil {
				r.logger.Warn("上下文提供者失败", zap.Error(err))
				return nil
			}
			providerSections[i] = section
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	actions := make([]types.Action, 0, len(r.actions))
	for i, ok := range availableActions {
		if ok {
			actions = append(actions, r.actions[i])
		}
	}
	evaluators := make([]types.Evaluator, 0, len(r.evaluators))
	for i, ok := range availableEvaluators {
		if ok {
			evaluators = append(evaluators, r.evaluators[i])
		}
	}

	state.Actions = formatActions(actions)
	state.ActionNames = formatActionNames(actions)
	state.ActionExamples = formatActionExamples(actions)
	state.Evaluators = formatEvaluators(evaluators)
	state.EvaluatorNames = formatEvaluatorNames(evaluators)
	state.EvaluatorExamples = formatEvaluatorExamples(evaluators)

	sections := make([]string, 0, len(providerSections))
	for _, s := range providerSections {
		if s != "" {
			sections = append(sections, s)
		}
	}
	state.Providers = strings.Join(sections, "\n")
	return nil
}

// UpdateRecentMessageState 只刷新最近消息相关的区块, 其余保持不变.
// 一轮内 agent 自己写入新消息后调用, 比整个重算便宜.
func (r *AgentRuntime) UpdateRecentMessageState(ctx context.Context, state *types.State) (*types.State, error) {
	recentMessages, err := r.messages.GetMemories(ctx, state.RoomID, r.conversationLength, false)
	if err != nil {
		return nil, err
	}
	actors, err := r.db.GetActorDetails(ctx, state.RoomID)
	if err != nil {
		return nil, err
	}

	updated := *state
	updated.ActorsData = actors
	updated.Actors = formatActors(actors)
	updated.RecentMessagesData = recentMessages
	updated.RecentMessages = formatMessages(recentMessages, actors)
	updated.RecentPosts = formatPosts(recentMessages, actors)
	updated.Attachments = redactOldAttachments(recentMessages)
	return &updated, nil
}
