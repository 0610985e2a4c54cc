/*
Package testutil 提供 PersonaFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON，简化测试数据构造

# 子包

  - testutil/mocks: Mock 实现，包括 MockProvider（脚本化 LLM Provider，
    供解析-重试循环测试）和 MockEmbedder（确定性向量，支持错误注入
    以覆盖零向量降级路径）
  - testutil/fixtures: 测试数据工厂，提供预置角色定义

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponses("[RESPOND]")
	rt.Client().Registry().Register(types.ProviderOpenAI, provider)
*/
package testutil
