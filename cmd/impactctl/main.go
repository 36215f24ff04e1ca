// Package main: точка входа административной утилиты impactctl.
package main

import "github.com/mmeshcher/impact-portal/internal/cli"

// version задаётся при сборке через -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
