// Package main is the entry point of the Nexlayer MCP server.
//
// The server speaks the Model Context Protocol over stdio (the default, for
// local MCP clients) or HTTP, and exposes tools that take a repository from
// clone to a running Nexlayer deployment. See the cli package for flags and
// configuration.
package main

import (
	"os"

	"nexlayer.io/mcp/cli"
	"nexlayer.io/mcp/common"
)

func main() {
	if err := cli.Execute(); err != nil {
		common.Logger.WithError(err).Error("nexlayer-mcp failed")
		os.Exit(1)
	}
}
