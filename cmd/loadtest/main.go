// Command loadtest drives phased lift-ride traffic against the ingress and
// writes per-request results to CSV.
package main

import (
	"context"
	"os"

	"github.com/okian/skilift/internal/loadtest"
)

func main() {
	if err := loadtest.NewCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
