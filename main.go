package main

import "github.com/iksnae/questchat/cmd"

func main() {
	cmd.Execute()
}
