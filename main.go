package main

import "github/chapool/pairwallet/cmd"

func main() {
	cmd.Execute()
}
