package playbook

import "strings"

// ParseArgs 解析 "key=value key2='a b'" 格式的模块参数
//
// 不含 = 的词按原顺序拼接为 _raw_params；值可以用单引号或双引号包住空格。
func ParseArgs(s string) map[string]interface{} {
	args := make(map[string]interface{})
	var raw []string

	for _, word := range splitWords(s) {
		eq := strings.IndexByte(word, '=')
		if eq <= 0 || strings.ContainsAny(word[:eq], `"' `) {
			raw = append(raw, word)
			continue
		}
		args[word[:eq]] = unquote(word[eq+1:])
	}

	if len(raw) > 0 {
		args["_raw_params"] = strings.Join(raw, " ")
	}
	return args
}

// splitWords 按空白切分，引号内的空白不切分
func splitWords(s string) []string {
	var (
		words []string
		cur   strings.Builder
		quote byte
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			cur.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return words
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
