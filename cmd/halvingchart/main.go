package main

import "halving-chart/internal/cli"

func main() {
	cli.Execute()
}
