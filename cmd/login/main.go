package main

import "github.com/gorealm/gorealm/components/login"

func main() {
	login.Start()
}
