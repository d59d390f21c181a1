// The harvester executable.
package main

import (
	"github.com/tastewell/harvester/cmd"
)

func main() {
	cmd.Execute()
}
