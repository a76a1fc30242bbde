/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/aura-assist/gateway/cmd"

func main() {
	cmd.Execute()
}
