package main

import "mkulima/internal/cli"

func main() {
	cli.Execute()
}
