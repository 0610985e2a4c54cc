// Package embedding 提供文本向量化后端: 远程 OpenAI 兼容端点、本地
// BGE 推理服务, 以及带显式降级的组合器.
package embedding

import (
	"context"
	"strconv"

	"github.com/BaSui01/personaflow/types"
)

// 各后端族的向量维度. 维度由后端决定, 调用方不能混用不同维度的向量.
const (
	DimRemoteOpenAI = types.DimOpenAI // 1536, text-embedding-3-small
	DimRemoteOllama = types.DimOllama // 1024, mxbai-embed-large
	DimLocalBGE     = types.DimLocal  // 384, BGE-small
)

// Embedder 是向量化后端的最小接口.
type Embedder interface {
	// Embed 向量化一批文本. 空输入是调用方的编程错误, 返回致命错误
	// 而不是静默产出空向量.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// Dimensions 返回该后端产出向量的维度.
	Dimensions() int
	Name() string
}

// ZeroVector 返回指定维度的全零向量. 向量化失败时记忆仍要可存储、
// 可被非向量路径检索, 全零向量就是这个占位语义.
func ZeroVector(dim int) []float64 {
	return make([]float64, dim)
}

// IsZeroVector 判断向量是否为全零占位.
func IsZeroVector(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return len(v) > 0
}

func validateInput(texts []string) error {
	if len(texts) == 0 {
		return types.NewError(types.ErrEmptyContent, "no texts passed to Embed")
	}
	for i, t := range texts {
		if t == "" {
			return types.NewError(types.ErrEmptyContent, "empty text at index "+strconv.Itoa(i))
		}
	}
	return nil
}
