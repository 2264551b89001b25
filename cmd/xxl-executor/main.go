// Command xxl-executor runs a demo executor that registers with an xxl-job
// coordinator and serves its trigger endpoints until interrupted.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(submain(context.Background()))
}
