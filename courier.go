package main

import (
	"fmt"
	"os"
	"time"

	"github.com/qiaobaojoe/house-file-courier/cmd"

	"github.com/getsentry/sentry-go"
)

func main() {
	// An empty SENTRY_DSN leaves the client disabled.
	err := sentry.Init(sentry.ClientOptions{
		SampleRate:       0.1,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
		Release:          "courier@" + cmd.Version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
