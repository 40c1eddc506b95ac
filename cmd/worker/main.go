package main

import "github.com/ramiqadoumi/go-content-flow/services/worker/cli"

func main() {
	cli.Execute()
}
