package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is inserted at build using -ldflags -X.
var Version = "(unknown version)"

func main() {
	ctx := dlog.WithField(context.Background(), "MAIN", "main")
	ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(makeBaseLogger()))

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		dlog.Errorf(ctx, "quit: %v", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "signalhub",
		Short:        "Signaling hub for peer-to-peer overlay networks",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCommand())
	return cmd
}

// makeBaseLogger mirrors the teacher's cmd/traffic/main.go logger setup:
// a logrus.TextFormatter with full timestamps, level taken from LOG_LEVEL.
func makeBaseLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})

	level := logrus.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if parsed, err := logrus.ParseLevel(s); err == nil {
			level = parsed
		} else {
			fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL %q: %v\n", s, err)
		}
	}
	logger.SetLevel(level)
	return logger
}
