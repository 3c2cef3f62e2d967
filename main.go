package main

import "Pogger/cmd"

func main() {
	cmd.Execute()
}
