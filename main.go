package main

import "github.com/lapdev/wsagent/cmd"

func main() {
	cmd.Execute()
}
