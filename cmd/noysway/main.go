package main

import "github.com/MeKo-Tech/noysway/internal/cmd"

func main() {
	cmd.Execute()
}
