// Command gpioctl sends commands to a gpiod server and watches its button
// events.
package main

import "os"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
