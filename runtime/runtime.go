// Package runtime 实现 agent 编排核心: 管理角色、能力注册、状态合成、
// 动作分发和轮后评估.
package runtime

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/personaflow/cache"
	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/embedding"
	"github.com/BaSui01/personaflow/internal/metrics"
	"github.com/BaSui01/personaflow/knowledge"
	"github.com/BaSui01/personaflow/llm"
	"github.com/BaSui01/personaflow/memory"
	"github.com/BaSui01/personaflow/types"
)

// DefaultConversationLength 是最近消息窗口的默认条数.
const DefaultConversationLength = 32

// Options 配置一个 AgentRuntime 实例.
type Options struct {
	Character *types.Character
	DB        database.Adapter

	// Client 为空时按角色配置构建.
	Client *llm.Client
	// Embedder 为空时按角色配置选择.
	Embedder embedding.Embedder
	// CacheAdapter 为空时用进程内存.
	CacheAdapter cache.Adapter

	ConversationLength int

	Actions    []types.Action
	Evaluators []types.Evaluator
	Providers  []types.ContextProvider
	Services   []types.Service
	Plugins    []types.Plugin

	Metrics *metrics.Collector
	Logger  *zap.Logger

	// Rand 注入随机源, 仅测试用; 为空时用全局源.
	Rand *rand.Rand
}

// AgentRuntime 是单个角色的编排器. 一个实例服务一个角色的全部会话;
// 角色定义可通过 SetCharacter 热更新, agent 身份和 Provider 不变.
type AgentRuntime struct {
	agentID            types.UUID
	conversationLength int

	charMu    sync.RWMutex
	character *types.Character

	db        database.Adapter
	cache     *cache.Manager
	client    *llm.Client
	embedder  embedding.Embedder
	knowledge *knowledge.Manager

	// 每张记忆表一个管理器
	messages     *memory.Manager
	descriptions *memory.Manager
	lore         *memory.Manager

	actions    []types.Action
	evaluators []types.Evaluator
	providers  []types.ContextProvider
	services   map[string]types.Service

	metrics *metrics.Collector
	logger  *zap.Logger
	rng     *rand.Rand
}

var _ types.Runtime = (*AgentRuntime)(nil)

// New 构造一个 AgentRuntime 并完成自举:
//   - 校验角色的 Provider 标识, 不支持立即失败
//   - 确保 agent 自己的账户、自房间和自参与记录存在(幂等)
//   - 合并插件声明的能力和显式传入的能力, 重名注册告警跳过
func New(ctx context.Context, opts Options) (*AgentRuntime, error) {
	if opts.Character == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "a character is required")
	}
	if opts.DB == nil {
		return nil, types.NewError(types.ErrMissingService, "a storage adapter is required")
	}
	if err := types.ValidateProvider(opts.Character.ModelProvider); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.Nop()
	}

	agentID := opts.Character.ID
	if agentID == (types.UUID{}) {
		agentID = types.DeterministicID("agent:" + opts.Character.Name)
	}
	logger = logger.With(
		zap.String("agent", opts.Character.Name),
		zap.String("agentId", agentID.String()),
	)

	conversationLength := opts.ConversationLength
	if conversationLength <= 0 {
		conversationLength = DefaultConversationLength
	}

	client := opts.Client
	if client == nil {
		var err error
		client, err = llm.NewClient(llm.ClientConfig{Character: opts.Character}, collector, logger)
		if err != nil {
			return nil, err
		}
	}
	embedder := opts.Embedder
	if embedder == nil {
		embedder = embedding.ForCharacter(opts.Character, collector, logger)
	}
	cacheAdapter := opts.CacheAdapter
	if cacheAdapter == nil {
		cacheAdapter = cache.NewMemoryAdapter()
	}

	rt := &AgentRuntime{
		agentID:            agentID,
		character:          opts.Character,
		conversationLength: conversationLength,
		db:                 opts.DB,
		cache:              cache.NewManager(cacheAdapter, agentID, collector, logger),
		client:             client,
		embedder:           embedder,
		knowledge:          knowledge.NewManager(opts.DB, embedder, agentID, logger),
		messages:           memory.NewManager(opts.DB, embedder, database.TableMessages, agentID, collector, logger),
		descriptions:       memory.NewManager(opts.DB, embedder, database.TableFacts, agentID, collector, logger),
		lore:               memory.NewManager(opts.DB, embedder, database.TableLore, agentID, collector, logger),
		services:           make(map[string]types.Service),
		metrics:            collector,
		logger:             logger,
		rng:                opts.Rand,
	}

	if err := rt.ensureAgentExists(ctx); err != nil {
		return nil, err
	}

	for _, a := range opts.Actions {
		rt.RegisterAction(a)
	}
	for _, e := range opts.Evaluators {
		rt.RegisterEvaluator(e)
	}
	for _, p := range opts.Providers {
		rt.RegisterContextProvider(p)
	}
	for _, s := range opts.Services {
		if err := rt.RegisterService(ctx, s); err != nil {
			return nil, err
		}
	}
	for _, plugin := range opts.Plugins {
		if err := rt.registerPlugin(ctx, plugin); err != nil {
			return nil, err
		}
	}

	// 角色自带的静态知识作为文档摄取
	for _, text := range opts.Character.Knowledge {
		if err := rt.knowledge.Set(ctx, knowledge.Item{Content: types.Content{Text: text}}); err != nil {
			return nil, fmt.Errorf("ingest character knowledge: %w", err)
		}
	}

	logger.Info("运行时初始化完成",
		zap.String("provider", string(opts.Character.ModelProvider)),
		zap.Int("actions", len(rt.actions)),
		zap.Int("evaluators", len(rt.evaluators)),
		zap.Int("providers", len(rt.providers)),
	)
	return rt, nil
}

// ensureAgentExists 建立 agent 的账户、自房间和自参与记录. 检查后
// 创建, 重复调用不会产生重复记录.
func (r *AgentRuntime) ensureAgentExists(ctx context.Context) error {
	account, err := r.db.GetAccountByID(ctx, r.agentID)
	if err != nil {
		return fmt.Errorf("look up agent account: %w", err)
	}
	if account == nil {
		if err := r.db.CreateAccount(ctx, &types.Account{
			ID:       r.agentID,
			Name:     r.character.Name,
			Username: r.character.Name,
		}); err != nil {
			return fmt.Errorf("create agent account: %w", err)
		}
	}

	selfRoom := types.RoomFor(r.agentID)
	room, err := r.db.GetRoom(ctx, selfRoom)
	if err != nil {
		return fmt.Errorf("look up self room: %w", err)
	}
	if room == nil {
		if _, err := r.db.CreateRoom(ctx, selfRoom); err != nil {
			return fmt.Errorf("create self room: %w", err)
		}
	}

	if err := r.db.AddParticipant(ctx, r.agentID, selfRoom); err != nil {
		return fmt.Errorf("join self room: %w", err)
	}
	return nil
}

func (r *AgentRuntime) registerPlugin(ctx context.Context, p types.Plugin) error {
	r.logger.Debug("注册插件", zap.String("plugin", p.Name))
	for _, a := range p.Actions {
		r.RegisterAction(a)
	}
	for _, e := range p.Evaluators {
		r.RegisterEvaluator(e)
	}
	for _, prov := range p.Providers {
		r.RegisterContextProvider(prov)
	}
	for _, s := range p.Services {
		if err := r.RegisterService(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAction 注册一个动作. 重名时告警跳过.
func (r *AgentRuntime) RegisterAction(a types.Action) {
	for _, existing := range r.actions {
		if existing.Name == a.Name {
			r.logger.Warn("动作重复注册, 已跳过", zap.String("action", a.Name))
			return
		}
	}
	r.actions = append(r.actions, a)
}

// RegisterEvaluator 注册一个评估器. 重名时告警跳过.
func (r *AgentRuntime) RegisterEvaluator(e types.Evaluator) {
	for _, existing := range r.evaluators {
		if existing.Name == e.Name {
			r.logger.Warn("评估器重复注册, 已跳过", zap.String("evaluator", e.Name))
			return
		}
	}
	r.evaluators = append(r.evaluators, e)
}

// RegisterContextProvider 注册一个上下文提供者.
func (r *AgentRuntime) RegisterContextProvider(p types.ContextProvider) {
	r.providers = append(r.providers, p)
}

// RegisterService 注册并初始化一个服务. 重名时告警跳过.
func (r *AgentRuntime) RegisterService(ctx context.Context, s types.Service) error {
	if _, exists := r.services[s.Name()]; exists {
		r.logger.Warn("服务重复注册, 已跳过", zap.String("service", s.Name()))
		return nil
	}
	if err := s.Initialize(ctx, r); err != nil {
		return fmt.Errorf("initialize service %q: %w", s.Name(), err)
	}
	r.services[s.Name()] = s
	return nil
}

// Service 按名字取已注册的服务. 缺失的必需服务是致命错误.
func (r *AgentRuntime) Service(name string) (types.Service, error) {
	s, ok := r.services[name]
	if !ok {
		return nil, types.NewError(types.ErrMissingService,
			fmt.Sprintf("service %q is not registered", name))
	}
	return s, nil
}

// AgentID 实现 types.Runtime.
func (r *AgentRuntime) AgentID() types.UUID { return r.agentID }

// Character 实现 types.Runtime.
func (r *AgentRuntime) Character() *types.Character {
	r.charMu.RLock()
	defer r.charMu.RUnlock()
	return r.character
}

// SetCharacter 热替换角色定义, 角色文件变更监听的回调走这里.
// Provider 不可变更(生成客户端的适配器在构造时装配完成), agentID 保持
// 不变; 人设字段和生成参数对后续轮次立即生效.
func (r *AgentRuntime) SetCharacter(character *types.Character) error {
	if err := r.client.SetCharacter(character); err != nil {
		return err
	}
	r.charMu.Lock()
	r.character = character
	r.charMu.Unlock()
	r.logger.Info("角色定义已热更新", zap.String("character", character.Name))
	return nil
}

// ConversationLength 实现 types.Runtime.
func (r *AgentRuntime) ConversationLength() int { return r.conversationLength }

// Client 返回生成客户端.
func (r *AgentRuntime) Client() *llm.Client { return r.client }

// Cache 返回带 TTL 的缓存管理器.
func (r *AgentRuntime) Cache() *cache.Manager { return r.cache }

// Knowledge 返回知识管理器.
func (r *AgentRuntime) Knowledge() *knowledge.Manager { return r.knowledge }

// MessageManager 返回消息表的记忆管理器.
func (r *AgentRuntime) MessageManager() *memory.Manager { return r.messages }

// DescriptionManager 返回事实表的记忆管理器.
func (r *AgentRuntime) DescriptionManager() *memory.Manager { return r.descriptions }

// LoreManager 返回背景表的记忆管理器.
func (r *AgentRuntime) LoreManager() *memory.Manager { return r.lore }

// DB 返回底层存储门面.
func (r *AgentRuntime) DB() database.Adapter { return r.db }

// Embed 向量化一段文本, 供上层直接调用.
func (r *AgentRuntime) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EnsureConnection 确保用户账户、房间和双方的参与记录存在.
// 每个入站消息处理前调用一次, 幂等.
func (r *AgentRuntime) EnsureConnection(ctx context.Context, userID, roomID types.UUID, userName string) error {
	account, err := r.db.GetAccountByID(ctx, userID)
	if err != nil {
		return err
	}
	if account == nil {
		name := userName
		if name == "" {
			name = "User" + userID.String()[:8]
		}
		if err := r.db.CreateAccount(ctx, &types.Account{ID: userID, Name: name, Username: name}); err != nil {
			return err
		}
	}
	if _, err := r.db.CreateRoom(ctx, roomID); err != nil {
		return err
	}
	if err := r.db.AddParticipant(ctx, userID, roomID); err != nil {
		return err
	}
	return r.db.AddParticipant(ctx, r.agentID, roomID)
}

// intn 从注入的或全局的随机源取随机数.
func (r *AgentRuntime) intn(n int) int {
	if n <= 0 {
		return 0
	}
	if r.rng != nil {
		return r.rng.Intn(n)
	}
	return rand.Intn(n)
}
