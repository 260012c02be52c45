package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	var (
		dir     = flag.String("dir", ".", "directory to check")
		verbose = flag.Bool("verbose", false, "print each file as it is checked")
	)
	flag.Parse()

	checker := NewChecker(*verbose)
	if err := checker.CheckDirectory(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	violations := checker.Violations()
	for _, v := range violations {
		fmt.Println(v)
	}
	if len(violations) > 0 {
		fmt.Printf("\n%d violation(s) found\n", len(violations))
		os.Exit(1)
	}

	fmt.Println("No error code violations found")
}
