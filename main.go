package main

import "github.com/rowloom/rowloom/cmd"

func main() {
	cmd.Execute()
}
