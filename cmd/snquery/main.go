package main

import "github.com/sndata/snquery/internal/cli"

func main() {
	cli.Execute()
}
