package main

import "github.com/buildflame/buildflame/cli"

func main() {
	cli.Execute()
}
