package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Validate 检查组关系图是否无环，组变量继承依赖这一点才能终止
func (inv *Inventory) Validate() error {
	var result *multierror.Error

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(inv.Groups))
	reported := make(map[string]bool)

	var visit func(name string, path []string)
	visit = func(name string, path []string) {
		switch state[name] {
		case visiting:
			cycle := append(append([]string(nil), path...), name)
			key := strings.Join(cycle, "->")
			if !reported[key] {
				reported[key] = true
				result = multierror.Append(result,
					fmt.Errorf("group cycle detected: %s", strings.Join(cycle, " -> ")))
			}
			return
		case done:
			return
		}

		state[name] = visiting
		if g, ok := inv.Groups[name]; ok {
			for _, child := range g.Children {
				if _, exists := inv.Groups[child]; !exists {
					result = multierror.Append(result,
						fmt.Errorf("group %s references unknown child group %s", name, child))
					continue
				}
				visit(child, append(append([]string(nil), path...), name))
			}
		}
		state[name] = done
	}

	for _, name := range inv.groupOrder {
		visit(name, nil)
	}

	for _, hostname := range inv.hostOrder {
		for _, groupName := range inv.Hosts[hostname].Groups {
			if _, exists := inv.Groups[groupName]; !exists {
				result = multierror.Append(result,
					fmt.Errorf("host %s references unknown group %s", hostname, groupName))
			}
		}
	}

	return result.ErrorOrNil()
}

// groupDepth 计算组深度：all 为 0，其它组为父组最大深度加 1
func (inv *Inventory) groupDepth(name string, visiting map[string]bool) int {
	if name == "all" {
		return 0
	}
	if visiting[name] {
		return 0
	}
	visiting[name] = true
	defer delete(visiting, name)

	depth := 0
	if g, ok := inv.Groups[name]; ok {
		for _, parent := range g.Parents {
			if d := inv.groupDepth(parent, visiting); d > depth {
				depth = d
			}
		}
	}
	return depth + 1
}

// HostGroups 返回主机所属的全部组（含祖先组和 all），按深度、组名排序
func (inv *Inventory) HostGroups(hostname string) []string {
	host, ok := inv.Hosts[hostname]
	if !ok {
		return nil
	}

	member := map[string]bool{"all": true}
	var walk func(name string)
	walk = func(name string) {
		if member[name] {
			return
		}
		member[name] = true
		if g, ok := inv.Groups[name]; ok {
			for _, parent := range g.Parents {
				walk(parent)
			}
		}
	}
	for _, groupName := range host.Groups {
		walk(groupName)
	}

	names := make([]string, 0, len(member))
	depths := make(map[string]int, len(member))
	for name := range member {
		names = append(names, name)
		depths[name] = inv.groupDepth(name, make(map[string]bool))
	}
	sort.Slice(names, func(i, j int) bool {
		if depths[names[i]] != depths[names[j]] {
			return depths[names[i]] < depths[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// GroupVarLayers 返回主机的组变量层，低优先级在前
func (inv *Inventory) GroupVarLayers(hostname string) []map[string]interface{} {
	groups := inv.HostGroups(hostname)
	layers := make([]map[string]interface{}, 0, len(groups))
	for _, name := range groups {
		if g, ok := inv.Groups[name]; ok && len(g.Vars) > 0 {
			layers = append(layers, g.Vars)
		}
	}
	return layers
}

// GroupNamesOf 返回主机所属组名（不含 all 和 ungrouped），已排序
func (inv *Inventory) GroupNamesOf(hostname string) []string {
	var names []string
	for _, name := range inv.HostGroups(hostname) {
		if name == "all" || name == "ungrouped" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupMembers 返回每个组的成员主机（递归包含子组）
func (inv *Inventory) GroupMembers() map[string][]string {
	members := make(map[string][]string, len(inv.Groups))
	for name, group := range inv.Groups {
		members[name] = inv.collectGroupHosts(group)
	}
	return members
}

// assignUngrouped 将没有任何组的主机加入 ungrouped
func (inv *Inventory) assignUngrouped() {
	for _, hostname := range inv.hostOrder {
		if len(inv.Hosts[hostname].Groups) == 0 {
			inv.AddHostToGroup(hostname, "ungrouped")
		}
	}
}
