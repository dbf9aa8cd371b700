package main

import (
	"errors"
	"fmt"
	"os"
	"time"
)

func main() {
	console := &Console{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}

	root, cleanup := newRootCommand(console, time.Now)
	err := root.Execute()
	cleanup()

	if err != nil {
		if !errors.As(err, new(reportedError)) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
