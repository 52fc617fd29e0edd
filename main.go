package main

import "github.com/longkey1/advchat/cmd"

func main() {
	cmd.Execute()
}
