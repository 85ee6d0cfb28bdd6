package grace

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func ExitOrLog(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// A second signal exits the process immediately.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(130)
	}()

	return ctx
}
