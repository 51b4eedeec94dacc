package main

import "osinstall/osinstall/cmd"

func main() {
	cmd.Execute()
}
