package main

import "autosniper/internal/cli"

func main() {
	cli.Execute()
}
