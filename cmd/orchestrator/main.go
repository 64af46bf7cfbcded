package main

import "github.com/artisanal-iq/wordpress-content-generator/services/orchestrator/cli"

func main() {
	cli.Execute()
}
