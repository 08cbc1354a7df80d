package main

import "github.com/KaramelBytes/statm8/cmd"

func main() {
	cmd.Execute()
}
