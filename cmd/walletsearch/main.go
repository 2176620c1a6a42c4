package main

import "wallet-x-search/internal/cli"

func main() {
	cli.Execute()
}
