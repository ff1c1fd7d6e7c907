package main

import (
	"github.com/luma/ldapws/cmd"
)

func main() {
	cmd.Execute()
}
