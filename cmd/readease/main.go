package main

import "github.com/wudi/readease/cmd/readease/cmd"

func main() {
	cmd.Execute()
}
