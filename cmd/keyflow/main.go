package main

import "github.com/devicelab-dev/keyflow/pkg/cli"

func main() {
	cli.Execute()
}
