package main

import "github.com/Sqott47/cinemate/cmd"

func main() {
	cmd.Execute()
}
