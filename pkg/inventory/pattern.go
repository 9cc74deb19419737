package inventory

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/jimyag/playcore/pkg/errors"
)

// patternOp 模式项的集合运算
type patternOp int

const (
	opUnion patternOp = iota
	opIntersect
	opDifference
)

type patternTerm struct {
	op   patternOp
	body string
}

// Resolve 根据主机模式解析主机列表
//
// 支持的语法：主机名、组名、通配符、all、并集 A:B (或 A,B)、交集 A:&B、差集 A:!B、
// 以及 A:&!B（与 B 的补集求交）。并集项先按出现顺序累积，然后依次应用交集和差集；
// 差集无论位置都会移除主机。没有任何并集项时从 all 开始。
// 结果按主机首次出现的顺序去重。
func (inv *Inventory) Resolve(pattern string) ([]*Host, error) {
	terms := parsePattern(pattern)
	if len(terms) == 0 {
		return nil, errors.NewPatternError(pattern, "")
	}

	var (
		ordered      []string
		seen         = make(map[string]bool)
		intersects   []map[string]bool
		differences  []map[string]bool
		hasUnionTerm bool
	)

	for _, term := range terms {
		names, err := inv.matchTerm(pattern, term.body)
		if err != nil {
			return nil, err
		}

		switch term.op {
		case opUnion:
			hasUnionTerm = true
			for _, name := range names {
				if !seen[name] {
					seen[name] = true
					ordered = append(ordered, name)
				}
			}
		case opIntersect:
			intersects = append(intersects, toSet(names))
		case opDifference:
			differences = append(differences, toSet(names))
		}
	}

	if !hasUnionTerm {
		ordered = inv.HostNames()
	}

	hosts := make([]*Host, 0, len(ordered))
	for _, name := range ordered {
		if !inAll(intersects, name) || inAny(differences, name) {
			continue
		}
		hosts = append(hosts, inv.Hosts[name])
	}

	return hosts, nil
}

// ResolveWithLimit 解析模式并与 limit 模式求交
func (inv *Inventory) ResolveWithLimit(pattern, limit string) ([]*Host, error) {
	hosts, err := inv.Resolve(pattern)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(limit) == "" {
		return hosts, nil
	}

	limited, err := inv.Resolve(limit)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(limited))
	for _, h := range limited {
		allowed[h.Name] = true
	}

	result := make([]*Host, 0, len(hosts))
	for _, h := range hosts {
		if allowed[h.Name] {
			result = append(result, h)
		}
	}
	return result, nil
}

// parsePattern 将模式拆分为带运算符的项
func parsePattern(pattern string) []patternTerm {
	fields := strings.FieldsFunc(pattern, func(r rune) bool {
		return r == ':' || r == ','
	})

	terms := make([]patternTerm, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		term := patternTerm{op: opUnion, body: field}
		switch {
		case strings.HasPrefix(field, "&!"), strings.HasPrefix(field, "!&"):
			term.op = opDifference
			term.body = field[2:]
		case strings.HasPrefix(field, "!"):
			term.op = opDifference
			term.body = field[1:]
		case strings.HasPrefix(field, "&"):
			term.op = opIntersect
			term.body = field[1:]
		}
		terms = append(terms, term)
	}
	return terms
}

// matchTerm 返回单个模式项匹配的主机名（有序）
func (inv *Inventory) matchTerm(pattern, body string) ([]string, error) {
	if body == "" {
		return nil, errors.NewPatternError(pattern, body)
	}
	if body == "all" || body == "*" {
		return inv.HostNames(), nil
	}

	if isGlob(body) {
		return inv.matchGlob(pattern, body)
	}

	if group, exists := inv.Groups[body]; exists {
		return inv.collectGroupHosts(group), nil
	}
	if _, exists := inv.Hosts[body]; exists {
		return []string{body}, nil
	}

	return nil, errors.NewPatternError(pattern, body)
}

// matchGlob 通配符同时匹配主机名和组名，零匹配时返回空集
func (inv *Inventory) matchGlob(pattern, body string) ([]string, error) {
	g, err := glob.Compile(body)
	if err != nil {
		patternErr := errors.NewPatternError(pattern, body)
		patternErr.Cause = err
		return nil, patternErr
	}

	viaGroup := make(map[string]bool)
	for _, groupName := range inv.groupOrder {
		if g.Match(groupName) {
			for _, hostname := range inv.collectGroupHosts(inv.Groups[groupName]) {
				viaGroup[hostname] = true
			}
		}
	}

	var names []string
	for _, hostname := range inv.hostOrder {
		if viaGroup[hostname] || g.Match(hostname) {
			names = append(names, hostname)
		}
	}
	return names, nil
}

// collectGroupHosts 递归收集组中的所有主机
func (inv *Inventory) collectGroupHosts(group *Group) []string {
	hostnames := make([]string, 0)
	seen := make(map[string]bool)
	visited := make(map[string]bool)

	var collect func(*Group)
	collect = func(g *Group) {
		if visited[g.Name] {
			return
		}
		visited[g.Name] = true

		// 添加直接主机
		for _, hostname := range g.Hosts {
			if !seen[hostname] {
				hostnames = append(hostnames, hostname)
				seen[hostname] = true
			}
		}

		// 递归处理子组
		for _, childName := range g.Children {
			if child, exists := inv.Groups[childName]; exists {
				collect(child)
			}
		}
	}

	collect(group)
	return hostnames
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func inAll(sets []map[string]bool, name string) bool {
	for _, s := range sets {
		if !s[name] {
			return false
		}
	}
	return true
}

func inAny(sets []map[string]bool, name string) bool {
	for _, s := range sets {
		if s[name] {
			return true
		}
	}
	return false
}
