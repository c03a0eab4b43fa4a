// Package analyzer inspects a checked-out repository and reports the services
// that can be containerized: their location, framework, package manager,
// Dockerfile presence and listening port.
//
// Layout rules:
//   - client/ and server/ subdirectories are services named "client" and "server"
//   - otherwise a project at the repository root is a single service named "app"
package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Service roles and their default ports when nothing better is known
const (
	ServiceClient = "client"
	ServiceServer = "server"
	ServiceApp    = "app"

	DefaultClientPort = 3000
	DefaultServerPort = 5000
	DefaultAppPort    = 3000
)

// Service is one buildable unit of a repository
type Service struct {
	Name             string    `json:"name"`
	Path             string    `json:"path"`
	Port             int       `json:"port"`
	PortSource       string    `json:"portSource"` // dockerfile, framework or default
	DockerfileExists bool      `json:"dockerfileExists"`
	Framework        Framework `json:"framework"`
	Language         string    `json:"language"`
	PackageManager   string    `json:"packageManager,omitempty"`
}

// Analysis is the result of inspecting a repository
type Analysis struct {
	RepoPath string    `json:"repoPath"`
	Services []Service `json:"services"`
	// Notes are human-readable observations, such as an unparseable EXPOSE line
	Notes []string `json:"notes,omitempty"`
}

// Service returns the service with the given name
func (a *Analysis) Service(name string) (Service, bool) {
	for _, s := range a.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

// MissingDockerfiles lists services that cannot be built yet
func (a *Analysis) MissingDockerfiles() []string {
	var missing []string
	for _, s := range a.Services {
		if !s.DockerfileExists {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

// Analyze scans repoPath for buildable services
func Analyze(repoPath string) (*Analysis, error) {
	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, fmt.Errorf("repository path does not exist: %s", repoPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path is not a directory: %s", repoPath)
	}

	analysis := &Analysis{RepoPath: repoPath}

	for _, role := range []struct {
		name string
		port int
	}{
		{ServiceClient, DefaultClientPort},
		{ServiceServer, DefaultServerPort},
	} {
		dir := filepath.Join(repoPath, role.name)
		if isDir(dir) {
			analysis.Services = append(analysis.Services, analysis.inspect(role.name, dir, role.port))
		}
	}

	if len(analysis.Services) == 0 && hasProject(repoPath) {
		analysis.Services = append(analysis.Services, analysis.inspect(ServiceApp, repoPath, DefaultAppPort))
	}

	return analysis, nil
}

func (a *Analysis) inspect(name, dir string, defaultPort int) Service {
	framework := DetectFramework(dir)
	svc := Service{
		Name:             name,
		Path:             dir,
		Port:             defaultPort,
		PortSource:       "default",
		DockerfileExists: fileExists(filepath.Join(dir, "Dockerfile")),
		Framework:        framework,
		Language:         framework.Language(),
		PackageManager:   DetectPackageManager(dir),
	}

	if port := framework.DefaultPort(); port != 0 {
		svc.Port = port
		svc.PortSource = "framework"
	}

	if svc.DockerfileExists {
		port, err := ParseDockerfilePort(dir)
		if err != nil {
			a.Notes = append(a.Notes, fmt.Sprintf("%s: could not parse port from Dockerfile: %v, using port %d", name, err, svc.Port))
		} else {
			svc.Port = port
			svc.PortSource = "dockerfile"
		}
	}

	return svc
}

// ParseDockerfilePort returns the first port exposed by dir/Dockerfile.
// "EXPOSE 3000/tcp" yields 3000; the directive is matched case-insensitively.
func ParseDockerfilePort(dir string) (int, error) {
	content, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	if err != nil {
		return 0, fmt.Errorf("failed to read Dockerfile: %w", err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		parts := strings.Fields(line)
		if len(parts) < 2 || !strings.EqualFold(parts[0], "EXPOSE") {
			continue
		}

		portStr, _, _ := strings.Cut(parts[1], "/")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return 0, fmt.Errorf("invalid port number in EXPOSE directive: %s", portStr)
		}
		if port < 1 || port > 65535 {
			return 0, fmt.Errorf("port number out of range: %d", port)
		}
		return port, nil
	}

	return 0, fmt.Errorf("no EXPOSE directive found in Dockerfile")
}

// DetectPackageManager infers the package manager from lock and manifest files
func DetectPackageManager(dir string) string {
	checks := []struct {
		file    string
		manager string
	}{
		{"pnpm-lock.yaml", "pnpm"},
		{"yarn.lock", "yarn"},
		{"bun.lockb", "bun"},
		{"package-lock.json", "npm"},
		{"package.json", "npm"},
		{"poetry.lock", "poetry"},
		{"Pipfile", "pipenv"},
		{"requirements.txt", "pip"},
		{"pyproject.toml", "pip"},
		{"go.mod", "go"},
	}
	for _, c := range checks {
		if fileExists(filepath.Join(dir, c.file)) {
			return c.manager
		}
	}
	return ""
}

// packageJSON is the subset of package.json used for detection
type packageJSON struct {
	Name            string            `json:"name"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p *packageJSON) has(dep string) bool {
	if _, ok := p.Dependencies[dep]; ok {
		return true
	}
	_, ok := p.DevDependencies[dep]
	return ok
}

func readPackageJSON(dir string) (*packageJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("invalid package.json: %w", err)
	}
	return &pkg, nil
}

func hasProject(dir string) bool {
	for _, f := range []string{"package.json", "requirements.txt", "pyproject.toml", "go.mod", "Dockerfile"} {
		if fileExists(filepath.Join(dir, f)) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
