package main

import (
	"github.com/dmarma/okta-mcp-server/internal/app"
	"github.com/dmarma/okta-mcp-server/internal/config"
)

func main() {
	app.Main(app.Command{Name: "okta-mcp-sse", Transport: config.TransportSSE})
}
