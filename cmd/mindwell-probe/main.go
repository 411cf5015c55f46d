// mindwell-probe: end-to-end smoke test for a running relay. Connects to
// /realtime, sends one text turn and prints the streamed reply.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/teslashibe/go-mindwell/internal/log"
	"github.com/teslashibe/go-mindwell/pkg/openai"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("mindwell-probe", flag.ContinueOnError)
	url := fs.StringP("url", "u", "ws://localhost:8080/realtime", "relay endpoint")
	text := fs.StringP("text", "t", "Say hello in five words.", "prompt to send")
	timeout := fs.Duration("timeout", 30*time.Second, "overall deadline")
	verbose := fs.Bool("debug", false, "log every realtime event")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := log.Init(level, "")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := openai.NewClient(openai.WithRelay(*url), openai.WithLogger(logger))
	done := make(chan struct{})
	client.OnTranscript = func(s string, final bool) { fmt.Print(s) }
	client.OnResponseDone = closeOnce(done)
	client.OnRelayInfo = func(msg string) { fmt.Printf("\nℹ️  %s\n", msg) }

	start := time.Now()
	fmt.Printf("🔌 Connecting to %s\n", *url)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	fmt.Printf("✅ Bridged in %dms\n\n", time.Since(start).Milliseconds())

	if err := client.ConfigureSession("You are a calm wellness companion. Keep replies short.", "", "text"); err != nil {
		return err
	}
	if err := client.SendText(*text); err != nil {
		return err
	}

	select {
	case <-done:
		fmt.Printf("\n\n⏱️  Reply complete in %dms\n", time.Since(start).Milliseconds())
		return nil
	case <-client.Done():
		return errors.New("relay closed the connection before the reply finished")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeOnce returns a func that closes ch on its first call only. The server
// may start more than one response per session.
func closeOnce(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}
