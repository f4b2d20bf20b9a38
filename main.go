package main

import "corridorbots/cmd"

func main() {
	cmd.Execute()
}
