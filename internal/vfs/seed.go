package vfs

import (
	_ "embed"
	"strings"
	"time"
)

var (
	//go:embed seed/README.txt
	seedReadme string
	//go:embed seed/welcome.txt
	seedWelcome string
	//go:embed seed/system-prompt.txt
	seedSystemPrompt string
	//go:embed seed/aliases.txt
	seedAliases string
)

// Well-known locations inside the tree.
const (
	AliasesPath      = "/configuration/aliases.txt"
	SystemPromptPath = "/configuration/system-prompt.txt"
)

// CommandStubs lists the entries materialised under /command.
var CommandStubs = []string{
	"ls", "cd", "pwd", "mkdir", "rmdir", "touch", "rm", "cp", "mv", "tree",
	"cat", "echo", "head", "tail", "wc", "grep",
	"date", "whoami", "uname", "df", "clear", "history",
	"whatis", "which", "help", "man",
	"download", "ping", "curl", "calc", "theme", "bgset", "neofetch", "json",
	"edit", "nano", "vim", "exit", "ai", "alias", "set", "upload", "reset",
}

// DefaultRoot builds the tree a fresh session starts with.
func DefaultRoot(now time.Time) *Node {
	root := NewDir("/", now)

	readme := NewFile("README", strings.TrimSpace(seedReadme), now)
	readme.Metadata.Readonly = true
	root.Children.Put(readme)

	home := NewDir("home", now)
	home.Children.Put(NewFile("welcome.txt", strings.TrimSpace(seedWelcome), now))
	root.Children.Put(home)

	root.Children.Put(commandDir(now))
	root.Children.Put(configurationDir(now))
	return root
}

func commandDir(now time.Time) *Node {
	dir := NewDir("command", now)
	for _, name := range CommandStubs {
		stub := NewFile(name, "Binary file: "+name, now)
		stub.Metadata.Readonly = true
		dir.Children.Put(stub)
	}
	return dir
}

func configurationDir(now time.Time) *Node {
	dir := NewDir("configuration", now)
	dir.Children.Put(NewFile("system-prompt.txt", strings.TrimSpace(seedSystemPrompt), now))
	dir.Children.Put(NewFile("aliases.txt", strings.TrimSpace(seedAliases), now))
	return dir
}
