package facts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jimyag/playcore/pkg/connection"
)

// Gather 通过连接收集主机系统信息
//
// 一次性执行一段脚本，输出按 "== name" 分节，避免多次往返。
func Gather(ctx context.Context, conn connection.Conn) (map[string]interface{}, error) {
	const script = `echo "== system"; uname -s; ` +
		`echo "== arch"; uname -m; ` +
		`echo "== kernel"; uname -r; ` +
		`echo "== hostname"; hostname; ` +
		`echo "== os-release"; cat /etc/os-release 2>/dev/null; ` +
		`echo "== lsb-release"; cat /etc/lsb-release 2>/dev/null; ` +
		`echo "== redhat-release"; cat /etc/redhat-release 2>/dev/null; ` +
		`exit 0`

	res, err := conn.Exec(ctx, script, connection.ExecOptions{})
	if err != nil {
		return nil, fmt.Errorf("gather facts: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("gather facts: exit code %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return ParseGatherOutput(string(res.Stdout)), nil
}

// ParseGatherOutput 解析 Gather 脚本的输出
func ParseGatherOutput(out string) map[string]interface{} {
	sections := splitSections(out)
	facts := make(map[string]interface{})

	if v := firstLine(sections["system"]); v != "" {
		facts["ansible_system"] = v
	}
	if v := firstLine(sections["arch"]); v != "" {
		facts["ansible_architecture"] = v
	}
	if v := firstLine(sections["kernel"]); v != "" {
		facts["ansible_kernel"] = v
	}
	if v := firstLine(sections["hostname"]); v != "" {
		facts["ansible_hostname"] = strings.SplitN(v, ".", 2)[0]
		facts["ansible_fqdn"] = v
	}

	if facts["ansible_system"] == "Linux" {
		switch {
		case strings.TrimSpace(sections["os-release"]) != "":
			parseOSRelease(sections["os-release"], facts)
		case strings.TrimSpace(sections["lsb-release"]) != "":
			parseLSBRelease(sections["lsb-release"], facts)
		case strings.TrimSpace(sections["redhat-release"]) != "":
			parseRedHatRelease(sections["redhat-release"], facts)
		}
	}
	return facts
}

func splitSections(out string) map[string]string {
	sections := make(map[string]string)
	var current string
	var b strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = b.String()
		}
		b.Reset()
	}
	for _, line := range strings.Split(out, "\n") {
		if name, ok := strings.CutPrefix(line, "== "); ok {
			flush()
			current = strings.TrimSpace(name)
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	flush()
	return sections
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// parseKeyValues 解析 KEY="value" 格式
func parseKeyValues(content string) map[string]string {
	kv := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kv[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return kv
}

// parseOSRelease 解析 /etc/os-release
func parseOSRelease(content string, facts map[string]interface{}) {
	osInfo := parseKeyValues(content)

	if id, ok := osInfo["ID"]; ok {
		facts["ansible_distribution"] = distributionName(id)
	} else if name, ok := osInfo["NAME"]; ok {
		facts["ansible_distribution"] = name
	}
	if version, ok := osInfo["VERSION_ID"]; ok {
		setVersion(facts, version)
	}

	if idLike, ok := osInfo["ID_LIKE"]; ok {
		facts["ansible_os_family"] = osFamily(idLike)
	} else if id, ok := osInfo["ID"]; ok {
		facts["ansible_os_family"] = osFamily(id)
	}
}

// parseLSBRelease 解析 /etc/lsb-release
func parseLSBRelease(content string, facts map[string]interface{}) {
	kv := parseKeyValues(content)
	if id, ok := kv["DISTRIB_ID"]; ok {
		facts["ansible_distribution"] = id
		facts["ansible_os_family"] = osFamily(id)
	}
	if release, ok := kv["DISTRIB_RELEASE"]; ok {
		setVersion(facts, release)
	}
}

// parseRedHatRelease 解析 /etc/redhat-release，例如 "CentOS Linux release 7.9.2009 (Core)"
func parseRedHatRelease(content string, facts map[string]interface{}) {
	content = strings.TrimSpace(content)
	lower := strings.ToLower(content)

	switch {
	case strings.Contains(lower, "centos"):
		facts["ansible_distribution"] = "CentOS"
	case strings.Contains(lower, "red hat"):
		facts["ansible_distribution"] = "RedHat"
	case strings.Contains(lower, "fedora"):
		facts["ansible_distribution"] = "Fedora"
	}
	facts["ansible_os_family"] = "RedHat"

	words := strings.Fields(content)
	for i, word := range words {
		if strings.EqualFold(word, "release") && i+1 < len(words) {
			setVersion(facts, words[i+1])
			break
		}
	}
}

func setVersion(facts map[string]interface{}, version string) {
	facts["ansible_distribution_version"] = version
	facts["ansible_distribution_major_version"] = strings.Split(version, ".")[0]
}

func distributionName(id string) string {
	switch strings.ToLower(id) {
	case "rhel":
		return "RedHat"
	case "centos":
		return "CentOS"
	case "opensuse", "opensuse-leap":
		return "openSUSE"
	}
	if id == "" {
		return id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}

// osFamily 把发行版映射到 OS family
func osFamily(distID string) string {
	distID = strings.ToLower(distID)

	switch {
	case strings.Contains(distID, "debian"), strings.Contains(distID, "ubuntu"):
		return "Debian"
	case strings.Contains(distID, "rhel"), strings.Contains(distID, "centos"),
		strings.Contains(distID, "fedora"), strings.Contains(distID, "red hat"):
		return "RedHat"
	case strings.Contains(distID, "arch"):
		return "Archlinux"
	case strings.Contains(distID, "alpine"):
		return "Alpine"
	case strings.Contains(distID, "suse"):
		return "Suse"
	default:
		return "Unknown"
	}
}
