package main

import "github.com/samhoang/asma/cmd"

func main() {
	cmd.Execute()
}
