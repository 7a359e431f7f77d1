package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/loginprobe/cmd"
)

func main() {
	// An interrupt raises the global stop signal: workers finish their
	// in-flight request and the pipeline drains instead of dying mid-run.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
