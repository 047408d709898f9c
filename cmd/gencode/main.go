package main

import (
	"fmt"
	"os"

	"github.com/quantarax/relay/internal/code"
)

func main() {
	c, err := code.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(c.String())
}
