package main

import (
	"github.com/ledgercache/ledgercache/cmd"
)

func main() {
	cmd.Execute()
}
