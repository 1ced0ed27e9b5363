// Command eddy runs block-based automation workflows from the terminal.
package main

func main() {
	Execute()
}
