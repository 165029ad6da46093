package main

import "github.com/NotrixInc/nx-samp/internal/cli"

func main() {
	cli.Execute()
}
