// Package main runs paging workloads on a simulated machine.
package main

import "github.com/sarchlab/pagingsim/cmd/pagingsim/cmd"

func main() {
	cmd.Execute()
}
