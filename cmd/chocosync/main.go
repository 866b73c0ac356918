package main

import "github.com/nhle/chocosync/internal/cli"

func main() {
	cli.Execute()
}
