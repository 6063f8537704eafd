//go:build !linux || !amd64

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "microvm: requires Linux with KVM on amd64")
	os.Exit(1)
}
