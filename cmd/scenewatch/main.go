package main

import "github.com/scenewatch/scenewatch/cmd/scenewatch/commands"

func main() {
	commands.Execute()
}
