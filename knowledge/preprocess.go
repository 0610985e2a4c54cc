package knowledge

import (
	"regexp"
	"strings"
)

// 预处理用的模式集. 顺序有讲究: 先删成块的结构(代码块、链接),
// 再删行内标记, 最后清理残余符号.
var (
	codeBlockRe  = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRe = regexp.MustCompile("`.*?`")
	imageRe      = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	linkRe       = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	urlRe        = regexp.MustCompile(`https?://\S+`)
	headerRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisRe   = regexp.MustCompile(`[*_~]{1,3}`)
	mentionRe    = regexp.MustCompile(`@\S+`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	commentRe    = regexp.MustCompile(`(?m)^\s*(//|#|/\*|\*).*$`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Preprocess 把原始文档归一成适合向量化的纯文本: 去掉代码块、
// markdown 标记、URL、@提及、HTML 标签和标点, 统一小写并压缩空白.
// 幂等: 对已处理文本再跑一遍结果不变.
func Preprocess(content string) string {
	if content == "" {
		return ""
	}

	out := codeBlockRe.ReplaceAllString(content, "")
	out = inlineCodeRe.ReplaceAllString(out, "")
	out = commentRe.ReplaceAllString(out, "")
	out = imageRe.ReplaceAllString(out, "")
	out = linkRe.ReplaceAllString(out, "$1")
	out = urlRe.ReplaceAllString(out, "")
	out = htmlTagRe.ReplaceAllString(out, "")
	out = headerRe.ReplaceAllString(out, "")
	out = emphasisRe.ReplaceAllString(out, "")
	out = mentionRe.ReplaceAllString(out, "")
	out = punctRe.ReplaceAllString(out, " ")
	out = strings.ToLower(out)
	out = spaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
