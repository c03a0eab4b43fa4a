package analyzer

import (
	"os"
	"path/filepath"
	"strings"
)

// Framework identifies the application stack of a service
type Framework string

const (
	FrameworkNext    Framework = "nextjs"
	FrameworkReact   Framework = "react"
	FrameworkVite    Framework = "vite"
	FrameworkVue     Framework = "vue"
	FrameworkAngular Framework = "angular"
	FrameworkNest    Framework = "nestjs"
	FrameworkExpress Framework = "express"
	FrameworkNode    Framework = "node"
	FrameworkDjango  Framework = "django"
	FrameworkFastAPI Framework = "fastapi"
	FrameworkFlask   Framework = "flask"
	FrameworkPython  Framework = "python"
	FrameworkGo      Framework = "go"
	FrameworkUnknown Framework = "unknown"
)

// Language returns the runtime language of the framework
func (f Framework) Language() string {
	switch f {
	case FrameworkDjango, FrameworkFastAPI, FrameworkFlask, FrameworkPython:
		return "python"
	case FrameworkGo:
		return "go"
	case FrameworkUnknown:
		return "unknown"
	default:
		return "javascript"
	}
}

// Static reports whether the build output is static files served by a web server
func (f Framework) Static() bool {
	switch f {
	case FrameworkReact, FrameworkVite, FrameworkVue, FrameworkAngular:
		return true
	}
	return false
}

// DefaultPort is the port the generated Dockerfile listens on, or 0 when the
// framework gives no hint
func (f Framework) DefaultPort() int {
	switch f {
	case FrameworkNext:
		return 3000
	case FrameworkReact, FrameworkVite, FrameworkVue, FrameworkAngular:
		return 80
	case FrameworkNest:
		return 3000
	case FrameworkDjango, FrameworkFastAPI:
		return 8000
	case FrameworkFlask:
		return 5000
	case FrameworkGo:
		return 8080
	}
	return 0
}

// nodeFrameworks is checked in order; meta-frameworks come before the libraries they use
var nodeFrameworks = []struct {
	dep       string
	framework Framework
}{
	{"next", FrameworkNext},
	{"@nestjs/core", FrameworkNest},
	{"@angular/core", FrameworkAngular},
	{"vue", FrameworkVue},
	{"vite", FrameworkVite},
	{"react-scripts", FrameworkReact},
	{"react", FrameworkReact},
	{"express", FrameworkExpress},
}

// DetectFramework inspects manifests in dir
func DetectFramework(dir string) Framework {
	if pkg, err := readPackageJSON(dir); err == nil {
		for _, nf := range nodeFrameworks {
			if pkg.has(nf.dep) {
				return nf.framework
			}
		}
		return FrameworkNode
	}

	if py := pythonManifest(dir); py != "" {
		switch {
		case strings.Contains(py, "django"):
			return FrameworkDjango
		case strings.Contains(py, "fastapi"):
			return FrameworkFastAPI
		case strings.Contains(py, "flask"):
			return FrameworkFlask
		default:
			return FrameworkPython
		}
	}

	if fileExists(filepath.Join(dir, "go.mod")) {
		return FrameworkGo
	}

	return FrameworkUnknown
}

// pythonManifest returns the lower-cased dependency declarations of a Python project
func pythonManifest(dir string) string {
	var b strings.Builder
	found := false
	for _, f := range []string{"requirements.txt", "pyproject.toml", "Pipfile"} {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			continue
		}
		found = true
		b.WriteString(strings.ToLower(string(data)))
		b.WriteByte('\n')
	}
	if !found {
		return ""
	}
	// an empty requirements file still marks a Python project
	return b.String() + " "
}
