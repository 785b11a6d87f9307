// Command refvec keeps a searchable vector index of a directory of
// reference documents up to date.
package main

import (
	"os"

	"github.com/Aman-CERP/refvec/cmd/refvec/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
