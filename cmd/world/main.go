package main

import "github.com/gorealm/gorealm/components/world"

func main() {
	world.Start()
}
