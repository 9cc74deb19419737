package inventory

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jimyag/playcore/pkg/errors"
)

// Parser 是 Inventory 解析器接口
type Parser interface {
	Parse(filePath string) (*Inventory, error)
}

// INIParser 解析 INI 格式的 inventory
type INIParser struct{}

// NewINIParser 创建一个新的 INI 解析器
func NewINIParser() *INIParser {
	return &INIParser{}
}

// Parse 解析 INI 格式的 inventory 文件
func (p *INIParser) Parse(filePath string) (*Inventory, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}
	inv, err := p.ParseBytes(data)
	if err != nil {
		return nil, errors.NewParseError(filePath, err)
	}
	return inv, nil
}

// ParseBytes 解析 INI 格式的 inventory 内容
func (p *INIParser) ParseBytes(data []byte) (*Inventory, error) {
	inv := NewInventory()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	currentSection := ""
	currentGroup := ""

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		// 解析 section header [groupname] 或 [groupname:vars] 或 [groupname:children]
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section := line[1 : len(line)-1]

			switch {
			case strings.HasSuffix(section, ":vars"):
				currentGroup = strings.TrimSuffix(section, ":vars")
				currentSection = "vars"
			case strings.HasSuffix(section, ":children"):
				currentGroup = strings.TrimSuffix(section, ":children")
				currentSection = "children"
			default:
				currentGroup = section
				currentSection = "hosts"
			}

			if currentGroup == "" {
				return nil, fmt.Errorf("line %d: empty group name", lineNum)
			}
			inv.AddGroup(currentGroup, nil)
			continue
		}

		if err := p.parseLine(inv, line, currentSection, currentGroup); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	inv.assignUngrouped()
	return inv, nil
}

// parseLine 解析单行内容
func (p *INIParser) parseLine(inv *Inventory, line, section, group string) error {
	switch section {
	case "hosts":
		return p.parseHost(inv, line, group)
	case "vars":
		return p.parseGroupVar(inv, line, group)
	case "children":
		inv.AddChild(group, strings.TrimSpace(line))
		return nil
	default:
		// 文件开头、不在任何 section 中的主机
		return p.parseHost(inv, line, "")
	}
}

// parseHost 解析主机行
func (p *INIParser) parseHost(inv *Inventory, line, group string) error {
	// 格式: hostname [key=value key=value ...]
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	hostname := parts[0]
	vars := make(map[string]interface{})

	// 解析行内变量
	for _, part := range parts[1:] {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid host variable %q for host %s", part, hostname)
		}
		vars[kv[0]] = scalarValue(kv[1])
	}

	inv.AddHost(hostname, vars)
	if group != "" {
		inv.AddHostToGroup(hostname, group)
	}
	return nil
}

// parseGroupVar 解析组变量
func (p *INIParser) parseGroupVar(inv *Inventory, line, group string) error {
	kv := strings.SplitN(line, "=", 2)
	if len(kv) != 2 {
		return fmt.Errorf("invalid variable line: %s", line)
	}

	key := strings.TrimSpace(kv[0])
	value := strings.TrimSpace(kv[1])
	inv.AddGroup(group, map[string]interface{}{key: scalarValue(value)})
	return nil
}

// scalarValue 按 YAML 标量规则推断 INI 值的类型（数字、布尔、带引号字符串）
func scalarValue(raw string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case string, int, float64, bool:
		return v
	default:
		return raw
	}
}
