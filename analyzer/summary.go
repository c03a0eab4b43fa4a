package analyzer

import (
	"fmt"
	"strings"
)

// DAGSummary describes the build graph for the given services
func DAGSummary(services []Service) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Build DAG for %d service(s):\n", len(services))

	for _, s := range services {
		source := "[Dockerfile missing]"
		if s.DockerfileExists {
			source = fmt.Sprintf("[Dockerfile with EXPOSE %d]", s.Port)
		}
		fmt.Fprintf(&b, "- %s: %s service (port %d) %s\n", s.Name, s.Framework, s.Port, source)
	}

	b.WriteString("\nBuild steps per service:\n")
	b.WriteString("1. Parse Dockerfile EXPOSE directive for port detection\n")
	b.WriteString("2. Platform: linux/amd64\n")
	b.WriteString("3. Build container from the service Dockerfile\n")
	b.WriteString("4. Push to ttl.sh registry\n")
	b.WriteString("5. Return image URLs with detected ports for YAML generation\n")

	return b.String()
}
