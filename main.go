package main

import "github.com/ValentinKolb/shardctl/cmd"

func main() {
	cmd.Execute()
}
