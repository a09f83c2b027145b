package main

import "github.com/ValentinKolb/litepool/cmd"

func main() {
	cmd.Execute()
}
