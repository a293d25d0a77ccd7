// Package main 是离线工具 memoctl 的入口。
package main

import (
	"fmt"
	"os"

	"github.com/anzchy/chat-memo-pro-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
