package main

import "github.com/respirelab/respicapture/cmd"

func main() {
	cmd.Execute()
}
