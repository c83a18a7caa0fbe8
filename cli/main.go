// Command autoqa creates and observes test runs on an autoqa server.
package main

import (
	"log"

	"github.com/xiaot623/gogo/autoqa/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
