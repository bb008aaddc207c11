package commands

import (
	"regexp"
	"strings"

	"minai/internal/vfs"
)

var aliasLine = regexp.MustCompile(`^([^\s=#][^\s=]*)=(.+)$`)

// builtinAliases exist regardless of the aliases file.
var builtinAliases = []Alias{
	{Name: "vim", Expansion: "edit"},
	{Name: "nano", Expansion: "edit"},
	{Name: "?", Expansion: "help"},
	{Name: "ask", Expansion: "chat"},
}

// RegisterBuiltinAliases installs the aliases that ship with the shell.
func RegisterBuiltinAliases(reg *Registry) {
	for _, a := range builtinAliases {
		reg.SetAlias(a.Name, a.Expansion)
	}
}

// ParseAliasLine splits `name=expansion`, trimming quotes around the
// expansion. Blank lines and comments yield ok=false.
func ParseAliasLine(line string) (name, expansion string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	m := aliasLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	expansion = strings.TrimSpace(m[2])
	if len(expansion) >= 2 {
		if q := expansion[0]; (q == '\'' || q == '"') && expansion[len(expansion)-1] == q {
			expansion = strings.TrimSpace(expansion[1 : len(expansion)-1])
		}
	}
	if expansion == "" {
		return "", "", false
	}
	return m[1], expansion, true
}

// LoadAliases replaces the alias table with the built-ins plus every
// definition in /configuration/aliases.txt. It returns how many came from the
// file; a missing file is not an error.
func LoadAliases(reg *Registry, fs *vfs.FileSystem) (int, error) {
	reg.ClearAliases()
	RegisterBuiltinAliases(reg)
	content, err := fs.Cat(vfs.AliasesPath)
	if err != nil {
		if vfs.IsKind(err, vfs.NotFound) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if name, exp, ok := ParseAliasLine(line); ok {
			reg.SetAlias(name, exp)
			n++
		}
	}
	return n, nil
}

// persistAlias rewrites the aliases file with name defined as expansion,
// keeping comments and other definitions.
func persistAlias(fs *vfs.FileSystem, name, expansion string) error {
	content, err := fs.Cat(vfs.AliasesPath)
	if err != nil && !vfs.IsKind(err, vfs.NotFound) {
		return err
	}
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if existing, _, ok := ParseAliasLine(line); ok && existing == name {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if expansion != "" {
		lines = append(lines, name+"="+expansion)
	}
	return fs.Write(vfs.AliasesPath, strings.Join(lines, "\n"), false)
}
