package main

import (
	// Asia/Shanghai must resolve on hosts without a zoneinfo database
	_ "time/tzdata"
)

func main() {
	Execute()
}
