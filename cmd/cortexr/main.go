package main

import "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/cli"

func main() {
	cli.Execute()
}
