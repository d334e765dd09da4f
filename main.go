package main

import "github.com/dmarma/okta-mcp-server/internal/app"

func main() {
	app.Main(app.Command{Name: "okta-mcp-server"})
}
