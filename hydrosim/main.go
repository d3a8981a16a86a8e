// Command hydrosim runs hydrologic models described by YAML run files.
package main

import "github.com/sarchlab/hydrosim/hydrosim/cmd"

func main() {
	cmd.Execute()
}
