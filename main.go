package main

import "github.com/kaelin-dev/subtrans/internal/cli"

func main() {
	cli.Run()
}
