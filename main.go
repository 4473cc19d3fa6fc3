package main

import "github.com/fletcherlabs/fletcher/cmd"

func main() {
	cmd.Execute()
}
