package main

import (
	"github.com/turtacn/txauth/cmd/cli"
)

// main is the entry point for the txauth-admin command-line tool.
// main 是 txauth-admin 命令行工具的入口点。
func main() {
	cli.Execute()
}
