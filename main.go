package main

import "RingCut/cmd"

func main() {
	cmd.Execute()
}
