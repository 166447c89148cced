package main

import "github.com/KaramelBytes/nca-cli/cmd"

func main() {
	cmd.Execute()
}
