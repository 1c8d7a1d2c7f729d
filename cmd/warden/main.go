package main

import "github.com/quietroom/warden/internal/cli"

func main() {
	cli.Execute()
}
