package main

import "storagectl/internal/cli"

func main() {
	cli.Execute()
}
