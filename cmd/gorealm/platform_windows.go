//go:build windows
// +build windows

package main

// BinaryExtension is the extension of executables
const BinaryExtension = ".exe"
