package main

import (
	"os"

	"github.com/ridge/smcmon/cli"
)

func main() {
	cli.Main(os.Args)
}
