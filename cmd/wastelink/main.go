// Command wastelink drives the WasteLink walkers from the terminal: it files
// and cancels pickup requests, assigns collector tasks and prints dashboards.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "wastelink:", err)
		os.Exit(1)
	}
}
