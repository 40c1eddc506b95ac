package main

import "github.com/ramiqadoumi/go-content-flow/services/drainer/cli"

func main() {
	cli.Execute()
}
