package main

import (
	"github.com/peercall/peercall/cmd/peercall/commands"
	"github.com/peercall/peercall/internal/logging"
)

func main() {
	logging.Init()
	commands.Execute()
}
