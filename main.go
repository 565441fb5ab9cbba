package main

import "github.com/SisyphusSQ/binrepl/cmd"

func main() {
	cmd.Execute()
}
