package main

import "github.com/aayushdutt/mcinstall/internal/cli"

func main() {
	cli.Execute()
}
