// Package main implements the replaycache CLI for inspecting cache files.
package main

func main() {
	Execute()
}
