// The main package for the assessor-scraper executable.
package main

import (
	"github.com/parcelworks/assessor-scraper/cmd"
)

func main() {
	cmd.Execute()
}
