package main

import "github.com/notargets/tmscoil/cmd"

func main() {
	cmd.Execute()
}
