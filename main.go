package main

import "snapcam/cmd"

func main() {
	cmd.Execute()
}
