package main

import (
	"liquidation-zone-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
