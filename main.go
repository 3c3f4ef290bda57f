package main

import "github.com/samsaffron/grade-llm/cmd"

func main() {
	cmd.Execute()
}
