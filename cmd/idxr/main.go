// Command idxr indexes sanitised tabular partitions into a vector store.
package main

import "github.com/GetAdriAI/idxr/internal/cli"

func main() {
	cli.Execute()
}
