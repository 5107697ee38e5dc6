package main

import (
	"os"

	"github.com/shoppingmall/mall/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
