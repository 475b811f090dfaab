package main

import "github.com/mikepea/empaccess/cmd/empaccess/cmd"

func main() {
	cmd.Execute()
}
