// =============================================================================
// 📦 测试数据工厂 - 角色测试数据
// =============================================================================
// 提供预定义的角色配置, 用于测试
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/personaflow/types"
)

// =============================================================================
// 🎭 角色工厂
// =============================================================================

// Character 返回一个字段齐全的测试角色.
// 每次调用返回新实例, 测试可以随意修改.
func Character() *types.Character {
	return &types.Character{
		Name:          "Nova",
		System:        "You are Nova, a helpful assistant.",
		Bio:           types.StringList{"Nova is a research assistant.", "Nova likes precise answers."},
		Lore:          []string{"Born in a datacenter.", "Dreams in vector space.", "Collects odd facts."},
		Topics:        []string{"science", "history"},
		Adjectives:    []string{"curious", "precise"},
		ModelProvider: types.ProviderOpenAI,
		Style: types.Style{
			All:  []string{"Be concise."},
			Chat: []string{"Use plain language."},
			Post: []string{"No hashtags."},
		},
		MessageExamples: [][]types.MessageExample{
			{
				{User: "{{user1}}", Content: types.Content{Text: "hey {{user1}} here, what's up"}},
				{User: "Nova", Content: types.Content{Text: "hello!"}},
			},
		},
		PostExamples: []string{"today I learned something new"},
	}
}

// MinimalCharacter 返回只有必填项的角色.
func MinimalCharacter(provider types.ModelProvider) *types.Character {
	return &types.Character{
		Name:          "Minimal",
		ModelProvider: provider,
	}
}

// CharacterWithSecrets 返回带 API 密钥的角色.
func CharacterWithSecrets(secrets map[string]string) *types.Character {
	c := Character()
	c.Settings.Secrets = secrets
	return c
}
