package main

import "github.com/openlms/crednotify/commands"

func main() {
	commands.Execute()
}
