package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tyemirov/stannp/internal/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := command.NewRootCommand(command.Dependencies{
		Output:    os.Stdout,
		LogOutput: os.Stderr,
	})
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if execErr := root.ExecuteContext(ctx); execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
		stop()
		os.Exit(1)
	}
}
