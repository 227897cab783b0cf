// Package shell classifies the commands of run: scripts.
package shell

import (
	"fmt"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

var exprPattern = regexp.MustCompile(`\$\{\{.*?\}\}`)

const placeholder = "FLOWTAINTEXPR%dX"

var placeholderPattern = regexp.MustCompile(`FLOWTAINTEXPR(\d+)X`)

// Script is a run: block reduced to its simple commands. Expressions are
// kept verbatim inside the command words.
type Script struct {
	Source   string
	Commands [][]string
	// Parsed is false when the script was not valid shell and the commands
	// were recovered line by line.
	Parsed bool
}

// Parse parses a shell script and returns a syntax tree
func Parse(script string) (*syntax.File, error) {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ParseScript extracts the commands of script. It never fails: scripts the
// parser rejects fall back to whitespace splitting per line.
func ParseScript(script string) *Script {
	var exprs []string
	masked := exprPattern.ReplaceAllStringFunc(script, func(m string) string {
		exprs = append(exprs, m)
		return fmt.Sprintf(placeholder, len(exprs)-1)
	})
	restore := func(s string) string {
		return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
			var i int
			fmt.Sscanf(m, "FLOWTAINTEXPR%dX", &i)
			if i < len(exprs) {
				return exprs[i]
			}
			return m
		})
	}

	s := &Script{Source: script}
	file, err := Parse(masked)
	if err != nil {
		for _, line := range strings.Split(masked, "\n") {
			for _, part := range strings.FieldsFunc(line, func(r rune) bool { return r == ';' || r == '|' || r == '&' }) {
				fields := strings.Fields(part)
				if len(fields) == 0 {
					continue
				}
				for i := range fields {
					fields[i] = restore(fields[i])
				}
				s.Commands = append(s.Commands, fields)
			}
		}
		return s
	}

	s.Parsed = true
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		words := make([]string, 0, len(call.Args))
		for _, w := range call.Args {
			words = append(words, restore(wordString(w)))
		}
		s.Commands = append(s.Commands, words)
		return true
	})
	return s
}

func wordString(w *syntax.Word) string {
	var b strings.Builder
	writeParts(&b, w.Parts)
	return b.String()
}

func writeParts(b *strings.Builder, parts []syntax.WordPart) {
	for _, p := range parts {
		switch v := p.(type) {
		case *syntax.Lit:
			b.WriteString(v.Value)
		case *syntax.SglQuoted:
			b.WriteString(v.Value)
		case *syntax.DblQuoted:
			writeParts(b, v.Parts)
		case *syntax.ParamExp:
			if v.Param != nil {
				b.WriteString("$" + v.Param.Value)
			}
		default:
			b.WriteString("$")
		}
	}
}

// packageManagers run project defined code for these subcommands.
var packageManagers = map[string]map[string]bool{
	"npm":    set("install", "i", "ci", "run", "run-script", "test", "t", "start", "build", "exec", "rebuild", "pack", "publish"),
	"yarn":   nil,
	"pnpm":   nil,
	"bun":    set("install", "i", "run", "test", "x"),
	"go":     set("build", "test", "run", "generate", "install", "vet"),
	"cargo":  set("build", "test", "run", "check", "bench", "install", "publish"),
	"pip":    set("install"),
	"pip3":   set("install"),
	"poetry": set("install", "run", "build"),
	"bundle": set("install", "exec"),
	"dotnet": set("build", "test", "run", "restore", "pack", "publish"),
	"docker": set("build", "buildx", "compose"),
	"gem":    set("build", "install"),
}

// buildTools execute repository content whatever their arguments.
var buildTools = set(
	"make", "cmake", "ninja", "mvn", "gradle", "ant", "sbt", "bazel", "bazelisk",
	"tox", "nox", "pytest", "rake", "npx", "composer", "lerna", "nx", "turbo",
	"mix", "rebar3", "swift", "xcodebuild", "meson", "pre-commit", "eval", "source", ".",
)

// interpreters execute the script passed as first argument.
var interpreters = set("bash", "sh", "zsh", "python", "python3", "node", "ruby", "perl", "php", "deno", "pwsh")

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func isLocalPath(s string) bool {
	return strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") ||
		strings.HasPrefix(s, "$GITHUB_WORKSPACE") || strings.HasSuffix(s, ".sh") ||
		strings.HasSuffix(s, ".py") || strings.HasSuffix(s, ".js") || strings.HasSuffix(s, ".rb")
}

func firstArg(cmd []string) string {
	for _, a := range cmd[1:] {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}

// Sink reports whether the script runs code from the checked out tree.
func (s *Script) Sink() bool {
	for _, cmd := range s.Commands {
		if SinkCommand(cmd) {
			return true
		}
	}
	return false
}

// SinkCommand reports whether one command executes repository content.
func SinkCommand(cmd []string) bool {
	if len(cmd) == 0 {
		return false
	}
	name := cmd[0]
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		return true
	}
	if buildTools[name] {
		return true
	}
	if subs, ok := packageManagers[name]; ok {
		return subs == nil || subs[firstArg(cmd)]
	}
	if interpreters[name] {
		arg := firstArg(cmd)
		return arg != "" && isLocalPath(arg)
	}
	return false
}

// Checkout reports whether the script checks out pull request code, and the
// ref expression it checks out when there is one.
func (s *Script) Checkout() (ref string, ok bool) {
	for _, cmd := range s.Commands {
		if r, found := checkoutCommand(cmd); found {
			return r, true
		}
	}
	return "", false
}

func checkoutCommand(cmd []string) (string, bool) {
	if len(cmd) < 2 {
		return "", false
	}
	switch cmd[0] {
	case "gh":
		if len(cmd) >= 3 && cmd[1] == "pr" && cmd[2] == "checkout" {
			return "", true
		}
	case "git":
		switch cmd[1] {
		case "fetch", "pull":
			for _, a := range cmd[2:] {
				// a pull request head ref always follows new pushes
				if strings.Contains(a, "pull/") {
					return "", true
				}
			}
		case "checkout", "switch":
			for _, a := range cmd[2:] {
				if strings.Contains(a, "pull/") || strings.Contains(a, "FETCH_HEAD") {
					return "", true
				}
				if strings.Contains(a, "${{") {
					return exprIn(a), true
				}
			}
		}
	}
	return "", false
}

func exprIn(s string) string {
	if m := exprPattern.FindString(s); m != "" {
		return m
	}
	return ""
}

// ArtifactDownload reports whether the script downloads workflow run artifacts.
func (s *Script) ArtifactDownload() bool {
	for _, cmd := range s.Commands {
		if len(cmd) >= 3 && cmd[0] == "gh" && cmd[1] == "run" && cmd[2] == "download" {
			return true
		}
	}
	return false
}

// ExitsNonZero reports whether the script terminates the job with a failure.
func (s *Script) ExitsNonZero() bool {
	for _, cmd := range s.Commands {
		if cmd[0] == "exit" && len(cmd) > 1 && cmd[1] != "0" {
			return true
		}
	}
	return false
}
