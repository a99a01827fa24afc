package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
