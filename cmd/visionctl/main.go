package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"visionctl/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
