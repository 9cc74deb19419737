package inventory

import (
	"fmt"
	"strings"
)

// Manager 是 Inventory 管理器
type Manager struct {
	inventory *Inventory
}

// NewManager 创建一个新的 Manager
func NewManager() *Manager {
	return &Manager{inventory: NewInventory()}
}

// NewManagerFrom 包装一个已构建好的 Inventory
func NewManagerFrom(inv *Inventory) *Manager {
	return &Manager{inventory: inv}
}

// Load 加载 inventory 文件
func (m *Manager) Load(path string) error {
	// 根据文件扩展名选择解析器
	var parser Parser
	if strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml") {
		parser = NewYAMLParser()
	} else {
		parser = NewINIParser()
	}

	inv, err := parser.Parse(path)
	if err != nil {
		return err
	}

	if err := inv.Validate(); err != nil {
		return fmt.Errorf("invalid inventory %s: %w", path, err)
	}

	m.inventory = inv
	return nil
}

// Inventory 返回当前 inventory
func (m *Manager) Inventory() *Inventory {
	return m.inventory
}

// GetHost 获取单个主机
func (m *Manager) GetHost(name string) (*Host, error) {
	host, exists := m.inventory.Hosts[name]
	if !exists {
		return nil, fmt.Errorf("host not found: %s", name)
	}
	return host, nil
}

// GetHosts 根据模式获取主机列表
func (m *Manager) GetHosts(pattern string) ([]*Host, error) {
	return m.inventory.Resolve(pattern)
}

// GetGroup 获取组
func (m *Manager) GetGroup(name string) (*Group, error) {
	group, exists := m.inventory.Groups[name]
	if !exists {
		return nil, fmt.Errorf("group not found: %s", name)
	}
	return group, nil
}
