package main

import (
	"fmt"
	"os"

	"github.com/md-rashed-zaman/seqlog/tools/seqlogctl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "seqlogctl:", err)
		os.Exit(1)
	}
}
