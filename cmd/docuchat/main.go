// Package main is the entry point for the DocuChat service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/docuchat/docuchat/cmd/docuchat/app"
)

func main() {
	app.NewApp().Run()
}
