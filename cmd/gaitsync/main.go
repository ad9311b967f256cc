// Command gaitsync decodes wearable IMU recordings, aligns several devices on
// the master's radio timeline and stores or serves the result.
package main

import (
	"os"
)

func main() {
	if err := newApp(os.Stdout).rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
