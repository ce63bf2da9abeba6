package main

import (
	"context"
	"os"
)

func main() {
	runner := NewRunner(RunnerOpts{})

	if err := runner.App().Run(context.Background(), os.Args); err != nil {
		runner.logger.Fatal("application error", "err", err)
	}
}
