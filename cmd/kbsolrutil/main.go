package main

import (
	"os"

	"github.com/kbase/kbsolrutil/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
