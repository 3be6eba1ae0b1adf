package main

import (
	"os"

	"github.com/htol/locallib/app"
)

func main() {
	os.Exit(app.CLI(os.Args[1:]))
}
