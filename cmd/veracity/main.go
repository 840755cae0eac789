package main

import (
	"github.com/mchmarny/veracity/pkg/cli"
)

func main() {
	cli.Execute()
}
