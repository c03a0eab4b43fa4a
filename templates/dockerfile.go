package templates

import (
	"bytes"
	"fmt"
	"text/template"

	"nexlayer.io/mcp/analyzer"
)

// DockerfileParams selects and fills a Dockerfile template
type DockerfileParams struct {
	Framework      analyzer.Framework
	PackageManager string
	Port           int
	// StartCommand overrides the framework default entrypoint (shell form)
	StartCommand string
	// BuildDir is the static output directory for single-page apps
	BuildDir string
}

// dockerfileData is what the templates see
type dockerfileData struct {
	DockerfileParams
	Install  string
	Build    string
	Lockfile string
	Corepack bool
}

const nodeHeader = `FROM node:20-alpine AS build
WORKDIR /app
{{- if .Corepack}}
RUN corepack enable
{{- end}}
COPY package*.json {{.Lockfile}}./
RUN {{.Install}}
COPY . .
`

var dockerfileTemplates = map[string]string{
	"next": nodeHeader + `RUN {{.Build}}

FROM node:20-alpine
WORKDIR /app
ENV NODE_ENV=production
ENV PORT={{.Port}}
COPY --from=build /app ./
RUN addgroup -S app && adduser -S app -G app
USER app
EXPOSE {{.Port}}
CMD {{cmd .StartCommand "npm run start -- -p $PORT"}}
`,
	"static": nodeHeader + `RUN {{.Build}}

FROM nginx:alpine
COPY --from=build /app/{{.BuildDir}} /usr/share/nginx/html
RUN printf 'server {\n  listen {{.Port}};\n  root /usr/share/nginx/html;\n  location / {\n    try_files $uri /index.html;\n  }\n}\n' > /etc/nginx/conf.d/default.conf
EXPOSE {{.Port}}
CMD ["nginx", "-g", "daemon off;"]
`,
	"node": nodeHeader + `{{if .Build}}RUN {{.Build}}
{{end}}
FROM node:20-alpine
WORKDIR /app
ENV NODE_ENV=production
ENV PORT={{.Port}}
COPY --from=build /app ./
RUN addgroup -S app && adduser -S app -G app
USER app
EXPOSE {{.Port}}
CMD {{cmd .StartCommand "npm start"}}
`,
	"python": `FROM python:3.12-slim
WORKDIR /app
ENV PYTHONDONTWRITEBYTECODE=1
ENV PYTHONUNBUFFERED=1
ENV PORT={{.Port}}
COPY requirements*.txt pyproject.toml* ./
RUN if [ -f requirements.txt ]; then pip install --no-cache-dir -r requirements.txt; else pip install --no-cache-dir .; fi
COPY . .
RUN useradd --create-home app
USER app
EXPOSE {{.Port}}
CMD {{cmd .StartCommand "python app.py"}}
`,
	"go": `FROM golang:1.24-alpine AS build
WORKDIR /src
COPY go.mod go.sum* ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 GOOS=linux GOARCH=amd64 go build -o /out/app .

FROM gcr.io/distroless/static-debian12
COPY --from=build /out/app /app
ENV PORT={{.Port}}
USER nonroot:nonroot
EXPOSE {{.Port}}
ENTRYPOINT ["/app"]
`,
}

// RenderDockerfile produces a Dockerfile for the framework. Port 0 takes the
// framework default and then 3000.
func RenderDockerfile(params DockerfileParams) (string, error) {
	if params.Port == 0 {
		params.Port = params.Framework.DefaultPort()
	}
	if params.Port == 0 {
		params.Port = analyzer.DefaultAppPort
	}
	if params.Port < 1 || params.Port > 65535 {
		return "", fmt.Errorf("invalid port: %d", params.Port)
	}

	name, data := templateFor(params)
	text, ok := dockerfileTemplates[name]
	if !ok {
		return "", fmt.Errorf("no Dockerfile template for framework %q", params.Framework)
	}

	tmpl, err := template.New(name).Funcs(template.FuncMap{"cmd": shellCmd}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse Dockerfile template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return buf.String(), nil
}

func templateFor(params DockerfileParams) (string, dockerfileData) {
	data := dockerfileData{DockerfileParams: params}
	data.Install, data.Lockfile, data.Corepack = installCommand(params.PackageManager)
	data.Build = runScript(params.PackageManager, "build")

	switch params.Framework {
	case analyzer.FrameworkNext:
		return "next", data
	case analyzer.FrameworkReact, analyzer.FrameworkVite, analyzer.FrameworkVue, analyzer.FrameworkAngular:
		if data.BuildDir == "" {
			data.BuildDir = "dist"
			if params.Framework == analyzer.FrameworkReact {
				data.BuildDir = "build"
			}
		}
		return "static", data
	case analyzer.FrameworkNest:
		if data.StartCommand == "" {
			data.StartCommand = "node dist/main.js"
		}
		return "node", data
	case analyzer.FrameworkExpress, analyzer.FrameworkNode:
		data.Build = ""
		return "node", data
	case analyzer.FrameworkDjango:
		if data.StartCommand == "" {
			data.StartCommand = fmt.Sprintf("python manage.py runserver 0.0.0.0:%d", params.Port)
		}
		return "python", data
	case analyzer.FrameworkFastAPI:
		if data.StartCommand == "" {
			data.StartCommand = fmt.Sprintf("uvicorn main:app --host 0.0.0.0 --port %d", params.Port)
		}
		return "python", data
	case analyzer.FrameworkFlask:
		if data.StartCommand == "" {
			data.StartCommand = fmt.Sprintf("flask run --host 0.0.0.0 --port %d", params.Port)
		}
		return "python", data
	case analyzer.FrameworkPython:
		return "python", data
	case analyzer.FrameworkGo:
		return "go", data
	}
	return "", data
}

// installCommand returns the dependency install command, the lockfile to copy
// and whether corepack is needed
func installCommand(pm string) (string, string, bool) {
	switch pm {
	case "yarn":
		return "yarn install --frozen-lockfile", "yarn.lock ", true
	case "pnpm":
		return "pnpm install --frozen-lockfile", "pnpm-lock.yaml ", true
	case "bun":
		return "npm install -g bun && bun install", "bun.lockb ", false
	default:
		return "npm install", "", false
	}
}

func runScript(pm, script string) string {
	switch pm {
	case "yarn", "pnpm", "bun":
		return pm + " run " + script
	default:
		return "npm run " + script
	}
}

// shellCmd renders a CMD instruction in shell form so $PORT expands
func shellCmd(override, fallback string) string {
	command := fallback
	if override != "" {
		command = override
	}
	return fmt.Sprintf(`["sh", "-c", %q]`, command)
}
