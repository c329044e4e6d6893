package main

import (
	"threshold-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
