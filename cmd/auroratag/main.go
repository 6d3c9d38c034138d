// auroratag runs the Aurora tagging operations from a shell or as a
// long-lived daemon.
package main

func main() {
	Execute()
}
