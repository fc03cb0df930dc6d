package main

import "github.com/rasnes/tiingo-powerbi-push/cmd"

func main() {
	cmd.Execute()
}
