package main

import "github.com/qrave1/RandomTalk/cmd"

func main() {
	cmd.Execute()
}
