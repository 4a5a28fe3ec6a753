package main

import "speedprobe/cmd/probe/command"

func main() {
	command.Execute()
}
