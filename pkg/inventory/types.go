package inventory

// Host 表示一个主机
type Host struct {
	Name   string                 // Inventory hostname (alias)
	Vars   map[string]interface{} // host_vars 层，包含 ansible_host, ansible_port 等
	Groups []string               // 直接所属组名（不含 all）
}

// Group 表示一个主机组
type Group struct {
	Name     string
	Hosts    []string // 主机名列表
	Children []string // 子组名列表
	Vars     map[string]interface{}
	Parents  []string // 父组名列表 (用于计算变量优先级)
}

// Inventory 表示整个 inventory
type Inventory struct {
	Hosts  map[string]*Host
	Groups map[string]*Group

	hostOrder  []string // 主机声明顺序，保证模式解析结果稳定
	groupOrder []string
}

// NewInventory 创建一个新的 Inventory
func NewInventory() *Inventory {
	inv := &Inventory{
		Hosts:  make(map[string]*Host),
		Groups: make(map[string]*Group),
	}

	// 创建默认组
	inv.AddGroup("all", nil)
	inv.AddGroup("ungrouped", nil)
	inv.AddChild("all", "ungrouped")

	return inv
}

// AddHost 添加主机（已存在时合并变量）
func (inv *Inventory) AddHost(name string, vars map[string]interface{}) *Host {
	host, exists := inv.Hosts[name]
	if !exists {
		host = &Host{
			Name:   name,
			Vars:   make(map[string]interface{}),
			Groups: []string{},
		}
		inv.Hosts[name] = host
		inv.hostOrder = append(inv.hostOrder, name)
		inv.Groups["all"].Hosts = append(inv.Groups["all"].Hosts, name)
	}
	for k, v := range vars {
		host.Vars[k] = v
	}
	return host
}

// AddGroup 添加组（已存在时合并变量）
func (inv *Inventory) AddGroup(name string, vars map[string]interface{}) *Group {
	group, exists := inv.Groups[name]
	if !exists {
		group = &Group{
			Name:     name,
			Hosts:    []string{},
			Children: []string{},
			Vars:     make(map[string]interface{}),
			Parents:  []string{},
		}
		inv.Groups[name] = group
		inv.groupOrder = append(inv.groupOrder, name)
	}
	for k, v := range vars {
		group.Vars[k] = v
	}
	return group
}

// AddHostToGroup 将主机加入组，组和主机不存在时自动创建
func (inv *Inventory) AddHostToGroup(hostname, groupName string) {
	host := inv.AddHost(hostname, nil)
	if groupName == "" || groupName == "all" {
		return
	}
	group := inv.AddGroup(groupName, nil)
	if !contains(host.Groups, groupName) {
		host.Groups = append(host.Groups, groupName)
	}
	if !contains(group.Hosts, hostname) {
		group.Hosts = append(group.Hosts, hostname)
	}
}

// AddChild 建立父子组关系
func (inv *Inventory) AddChild(parent, child string) {
	p := inv.AddGroup(parent, nil)
	c := inv.AddGroup(child, nil)
	if !contains(p.Children, child) {
		p.Children = append(p.Children, child)
	}
	if !contains(c.Parents, parent) {
		c.Parents = append(c.Parents, parent)
	}
}

// HostNames 按声明顺序返回所有主机名
func (inv *Inventory) HostNames() []string {
	names := make([]string, len(inv.hostOrder))
	copy(names, inv.hostOrder)
	return names
}

// GroupNames 按声明顺序返回所有组名
func (inv *Inventory) GroupNames() []string {
	names := make([]string, len(inv.groupOrder))
	copy(names, inv.groupOrder)
	return names
}

// contains 检查切片是否包含元素
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
