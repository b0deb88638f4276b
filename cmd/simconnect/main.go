package main

import "github.com/adiga-code/SimConnect/internal/app"

func main() {
	app.Start()
}
