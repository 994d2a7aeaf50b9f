// pagetint re-themes HTML pages toward a target background colour while
// keeping text legible.
package main

import "github.com/jmylchreest/pagetint/internal/cli"

func main() {
	cli.Execute()
}
