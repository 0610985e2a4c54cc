// =============================================================================
// 🎭 角色定义加载
// =============================================================================
// 从 JSON 或 YAML 文件加载角色定义, 并做最小校验:
// 角色必须有名字和受支持的 modelProvider.
// =============================================================================
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/personaflow/types"
)

// LoadCharacter 从文件加载单个角色定义, 按扩展名选择解析器.
func LoadCharacter(path string) (*types.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character file: %w", err)
	}

	var character types.Character
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &character); err != nil {
			return nil, fmt.Errorf("failed to parse character file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &character); err != nil {
			return nil, fmt.Errorf("failed to parse character file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported character file extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}

	if err := ValidateCharacter(&character); err != nil {
		return nil, fmt.Errorf("invalid character file %s: %w", path, err)
	}
	return &character, nil
}

// LoadCharacterDir 加载目录下的所有角色定义文件, 按文件名排序.
func LoadCharacterDir(dir string) ([]*types.Character, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read character directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	characters := make([]*types.Character, 0, len(names))
	for _, name := range names {
		c, err := LoadCharacter(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		characters = append(characters, c)
	}
	return characters, nil
}

// ValidateCharacter 校验角色定义的必填项.
func ValidateCharacter(c *types.Character) error {
	if c.Name == "" {
		return fmt.Errorf("character name is required")
	}
	if c.ModelProvider == "" {
		return fmt.Errorf("character modelProvider is required")
	}
	if err := types.ValidateProvider(c.ModelProvider); err != nil {
		return err
	}
	if c.ImageModelProvider != "" {
		if err := types.ValidateProvider(c.ImageModelProvider); err != nil {
			return err
		}
	}
	return nil
}
