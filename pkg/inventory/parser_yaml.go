package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jimyag/playcore/pkg/errors"
)

// YAMLParser 解析 YAML 格式的 inventory
//
//	all:
//	  vars: {ntp: pool.ntp.org}
//	  children:
//	    webservers:
//	      hosts:
//	        web1: {ansible_host: 10.0.0.1}
//
// 使用 yaml.Node 遍历以保留主机和组的声明顺序。
type YAMLParser struct{}

// NewYAMLParser 创建一个新的 YAML 解析器
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// Parse 解析 YAML 格式的 inventory 文件
func (p *YAMLParser) Parse(filePath string) (*Inventory, error) {
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

// ParseBytes 解析 YAML 格式的 inventory 内容
func (p *YAMLParser) ParseBytes(data []byte) (*Inventory, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	inv := NewInventory()
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return inv, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("inventory root must be a mapping of groups")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		groupName := root.Content[i].Value
		if err := p.parseGroup(inv, groupName, root.Content[i+1]); err != nil {
			return nil, err
		}
	}

	inv.assignUngrouped()
	return inv, nil
}

// parseGroup 递归解析组定义
func (p *YAMLParser) parseGroup(inv *Inventory, name string, node *yaml.Node) error {
	inv.AddGroup(name, nil)

	// 空组: "webservers:"
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("group %s: expected mapping, got %s", name, nodeKind(node))
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		switch key {
		case "hosts":
			if err := p.parseHosts(inv, name, value); err != nil {
				return err
			}
		case "vars":
			vars, err := decodeVars(value)
			if err != nil {
				return fmt.Errorf("group %s vars: %w", name, err)
			}
			inv.AddGroup(name, vars)
		case "children":
			if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
				continue
			}
			if value.Kind != yaml.MappingNode {
				return fmt.Errorf("group %s children: expected mapping", name)
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				child := value.Content[j].Value
				inv.AddChild(name, child)
				if err := p.parseGroup(inv, child, value.Content[j+1]); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("group %s: unknown key %q", name, key)
		}
	}

	return nil
}

// parseHosts 解析组内主机
func (p *YAMLParser) parseHosts(inv *Inventory, group string, node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("group %s hosts: expected mapping", group)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		hostname := node.Content[i].Value
		vars, err := decodeVars(node.Content[i+1])
		if err != nil {
			return fmt.Errorf("host %s vars: %w", hostname, err)
		}
		inv.AddHost(hostname, vars)
		inv.AddHostToGroup(hostname, group)
	}
	return nil
}

func decodeVars(node *yaml.Node) (map[string]interface{}, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	var vars map[string]interface{}
	if err := node.Decode(&vars); err != nil {
		return nil, err
	}
	return vars, nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "node"
	}
}
