package llm

import (
	"context"
	"strings"

	"github.com/BaSui01/personaflow/llm/retry"
	"github.com/BaSui01/personaflow/parsing"
	"github.com/BaSui01/personaflow/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// ObjectRequest 是带 JSON Schema 约束的结构化生成请求.
type ObjectRequest struct {
	Context string
	// Schema 是 JSON Schema 文本, 为空时只做语法级解析.
	Schema string
	Tier   types.ModelTier
}

// GenerateObjectV2 生成 JSON 对象并用 Schema 校验. 解析或校验失败
// 都会触发退避重试, 和其它解析型生成器共用同一套协议.
func (c *Client) GenerateObjectV2(ctx context.Context, req *ObjectRequest) (map[string]any, error) {
	var schema *jsonschema.Schema
	if req.Schema != "" {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("request.json", strings.NewReader(req.Schema)); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "invalid JSON schema").WithCause(err)
		}
		compiled, err := compiler.Compile("request.json")
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "invalid JSON schema").WithCause(err)
		}
		schema = compiled
	}

	tier := req.Tier
	if tier == "" {
		tier = types.TierSmall
	}
	providerID := string(c.char().ModelProvider)

	return retry.Do(ctx, c.policy, c.logger, func(attempt int) (map[string]any, error) {
		out, err := c.GenerateText(ctx, &TextRequest{Tier: tier, Context: req.Context})
		if err != nil {
			c.metrics.RecordRetry(providerID, "provider_error")
			return nil, err
		}
		obj := parsing.ParseJSONObjectFromText(out)
		if obj == nil {
			c.metrics.RecordRetry(providerID, "parse_failed")
			c.metrics.RecordParseFailure(providerID, "object_v2")
			return nil, types.NewError(types.ErrParseFailed, "no JSON object in model output")
		}
		if schema != nil {
			if err := schema.Validate(map[string]any(obj)); err != nil {
				c.metrics.RecordRetry(providerID, "schema_failed")
				c.metrics.RecordParseFailure(providerID, "object_v2")
				c.logger.Debug("结构化输出不符合 schema",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return nil, types.NewError(types.ErrParseFailed, "model output failed schema validation").WithCause(err)
			}
		}
		return obj, nil
	})
}
