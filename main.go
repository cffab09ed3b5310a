package main

import "github.com/LeClarkGames/LeClark/cmd"

func main() {
	cmd.Execute()
}
