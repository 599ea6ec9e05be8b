package main

import "github.com/nfrund/courier/cmd/courier/cmd"

func main() {
	cmd.Execute()
}
