package main

import "github.com/jmehdipour/duebot/cmd"

func main() {
	cmd.Execute()
}
