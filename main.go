package main

import "github.com/vibast-solutions/ms-go-mutex/cmd"

func main() {
	cmd.Execute()
}
