package main

import (
	"os"
	"time"
)

var cmdOut = os.Stdout

func nowFunc() time.Time { return time.Now() }
