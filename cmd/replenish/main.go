package main

import (
	"fmt"
	"os"

	"github.com/nemonet1337/zaiReplenish/cmd/replenish/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}
