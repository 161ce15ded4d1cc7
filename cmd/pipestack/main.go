// Package main is the entry point for pipestack, the local data pipeline
// bootstrapper.
package main

func main() {
	Execute()
}
