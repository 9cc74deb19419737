package executor

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jimyag/playcore/pkg/vars"
)

// DefaultForks 默认并发主机数
const DefaultForks = 5

// Options 一次调用的运行选项
type Options struct {
	Limit         string                 // 额外的主机模式，与 play 的 hosts 取交集
	Tags          []string               // 只运行带这些标签的任务
	SkipTags      []string               // 跳过带这些标签的任务
	Forks         int                    `validate:"gte=1"`
	CheckMode     bool                   // 模块以 dry-run 方式执行
	Become        bool                   // 默认提权
	BecomeUser    string                 // 默认提权用户
	Timeout       time.Duration          `validate:"gte=0"` // 单次模块调用/建立连接的超时，0 表示不限
	ExtraVars     map[string]interface{} // 最高优先级变量
	HashBehaviour vars.HashBehaviour     `validate:"omitempty,oneof=replace merge"`
}

// DefaultOptions 返回默认选项
func DefaultOptions() Options {
	return Options{
		Forks:         DefaultForks,
		HashBehaviour: vars.HashReplace,
	}
}

var validate = validator.New()

// Validate 校验选项
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// tagsAllow 判断带有 tags 的任务在当前标签过滤下是否运行
//
// always 标签绕过 --tags（除非显式 --skip-tags always）；
// never 标签的任务只有被 --tags 显式选中时才运行。
func (o *Options) tagsAllow(tags []string) bool {
	if hasAny(tags, "always") {
		return !hasAny(o.SkipTags, "always")
	}

	if hasAny(tags, "never") && !intersects(o.Tags, tags) {
		return false
	}

	if len(o.Tags) > 0 && !hasAny(o.Tags, "all") && !intersects(o.Tags, tags) {
		switch {
		case hasAny(o.Tags, "tagged") && len(tags) > 0:
		case hasAny(o.Tags, "untagged") && len(tags) == 0:
		default:
			return false
		}
	}

	return !intersects(o.SkipTags, tags)
}

func hasAny(list []string, items ...string) bool {
	for _, a := range list {
		for _, b := range items {
			if a == b {
				return true
			}
		}
	}
	return false
}

func intersects(a, b []string) bool {
	return hasAny(a, b...)
}
