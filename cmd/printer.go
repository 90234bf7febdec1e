package cmd

import (
	"github.com/fatih/color"
)

// printWarn prints a warning to the screen.
func printWarn(message string) {
	message = "[-] " + message

	color.New(color.FgYellow, color.Bold).Println(message)
}

// printError prints an error, along with its user-facing message, to the screen.
func printError(err error) {
	message := "[!] " + errorMessage(err)

	color.New(color.FgRed, color.Bold).Println(message)
}
