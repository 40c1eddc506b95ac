package main

import "github.com/ramiqadoumi/go-content-flow/services/api-gateway/cli"

func main() {
	cli.Execute()
}
