package main

import "energypulse/internal/cli"

func main() {
	cli.Execute()
}
