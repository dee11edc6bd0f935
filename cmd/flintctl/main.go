package main

import "github.com/flint-go/flint/cmd/flintctl/cmd"

func main() {
	cmd.Execute()
}
