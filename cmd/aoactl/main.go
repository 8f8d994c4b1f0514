package main

import "github.com/aoactl/aoactld-go/cmd/aoactl/cmd"

func main() {
	cmd.Execute()
}
