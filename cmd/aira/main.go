// Command aira はクレジット課金付きチャットAPIサーバー、失効ワーカー、マイグレーションを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/aira/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "aira: %v\n", err)
		os.Exit(1)
	}
}
