package main

// version will be set by the release build
var version = "dev"

func main() {
	SetVersion(version)
	Execute()
}
