package main

import "atom/internal/cli"

func main() {
	cli.Execute()
}
