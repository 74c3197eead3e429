package main

import "github.com/mfekit/bff/cmd/bffd/cmd"

func main() {
	cmd.Execute()
}
