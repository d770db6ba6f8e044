package main

import "github.com/oshokin/family-guard/cmd/family-guard/cmd"

func main() {
	cmd.Execute()
}
