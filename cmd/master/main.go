package main

import "github.com/gorealm/gorealm/components/master"

func main() {
	master.Start()
}
