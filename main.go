package main

import "github.com/dhruvparmar372/ossgard-sub002/cmd"

func main() {
	cmd.Execute()
}
