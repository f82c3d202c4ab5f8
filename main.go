package main

import "github.com/tanq16/mediarelay/cmd"

func main() {
	cmd.Execute()
}
