// Command wipbot runs the writing-project Discord bot.
package main

import (
	"os"
	_ "time/tzdata"

	"github.com/ksteinfeldt/wipbot/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
