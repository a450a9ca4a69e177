package compile

import (
	"fmt"
	"sort"
)

// Language describes how to compile and run programs of one language inside
// the sandbox. Languages without CompileArgs are interpreted and skip the
// compile stage entirely.
type Language struct {
	Name    string
	SrcName string
	ExeName string

	CompileArgs []string
	RunArgs     []string
	Env         []string

	CompileTimeLimitMs   int64
	CompileMemoryLimitMB int64
}

// Compiled reports whether the language has a compile stage.
func (l Language) Compiled() bool {
	return len(l.CompileArgs) > 0
}

var defaultEnv = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=/w"}

var languages = map[string]Language{
	"C": {
		Name:    "C",
		SrcName: "main.c",
		ExeName: "main",
		CompileArgs: []string{
			"/usr/bin/gcc", "-O2", "-w", "-fmax-errors=3", "-std=c11",
			"main.c", "-lm", "-o", "main",
		},
		RunArgs:              []string{"./main"},
		Env:                  defaultEnv,
		CompileTimeLimitMs:   10000,
		CompileMemoryLimitMB: 512,
	},
	"C++": {
		Name:    "C++",
		SrcName: "main.cpp",
		ExeName: "main",
		CompileArgs: []string{
			"/usr/bin/g++", "-O2", "-w", "-fmax-errors=3", "-std=c++17",
			"main.cpp", "-lm", "-o", "main",
		},
		RunArgs:              []string{"./main"},
		Env:                  defaultEnv,
		CompileTimeLimitMs:   10000,
		CompileMemoryLimitMB: 512,
	},
	"Java": {
		Name:    "Java",
		SrcName: "Main.java",
		ExeName: "Main.jar",
		CompileArgs: []string{
			"/bin/sh", "-c",
			"javac -encoding utf-8 Main.java && jar -cvf Main.jar *.class",
		},
		RunArgs: []string{
			"/usr/bin/java", "-Dfile.encoding=UTF-8", "-cp", "Main.jar", "Main",
		},
		Env:                  defaultEnv,
		CompileTimeLimitMs:   20000,
		CompileMemoryLimitMB: 1024,
	},
	"Go": {
		Name:    "Go",
		SrcName: "main.go",
		ExeName: "main",
		CompileArgs: []string{
			"/usr/bin/go", "build", "-o", "main", "main.go",
		},
		RunArgs: []string{"./main"},
		Env: append([]string{
			"GOCACHE=/tmp", "GOPATH=/tmp/go", "GOFLAGS=-mod=off",
		}, defaultEnv...),
		CompileTimeLimitMs:   20000,
		CompileMemoryLimitMB: 1024,
	},
	"Python3": {
		Name:    "Python3",
		SrcName: "main.py",
		RunArgs: []string{"/usr/bin/python3", "main.py"},
		Env:     defaultEnv,
	},
	"JavaScript": {
		Name:    "JavaScript",
		SrcName: "main.js",
		RunArgs: []string{"/usr/bin/node", "main.js"},
		Env:     defaultEnv,
	},
	"PHP": {
		Name:    "PHP",
		SrcName: "main.php",
		RunArgs: []string{"/usr/bin/php", "main.php"},
		Env:     defaultEnv,
	},
}

// Lookup returns the configuration for a language name.
func Lookup(name string) (Language, bool) {
	l, ok := languages[name]
	return l, ok
}

// Supported lists the configured language names, sorted, for error
// messages.
func Supported() []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Program is a runnable user or auxiliary program. Compiled programs carry a
// sandbox artifact id or a host path; interpreted programs carry the source.
type Program struct {
	Language Language
	FileID   string
	HostPath string
	Source   string
}

func (p Program) String() string {
	switch {
	case p.FileID != "":
		return fmt.Sprintf("%s artifact %s", p.Language.Name, p.FileID)
	case p.HostPath != "":
		return fmt.Sprintf("%s binary at %s", p.Language.Name, p.HostPath)
	default:
		return fmt.Sprintf("%s source", p.Language.Name)
	}
}
