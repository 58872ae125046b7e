package main

import "github.com/Sternrassler/patent-harvester/internal/cli"

func main() {
	cli.Execute()
}
