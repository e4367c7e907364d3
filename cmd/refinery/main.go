package main

import "github.com/refinery-db/refinery/internal/cli"

func main() {
	cli.Execute()
}
