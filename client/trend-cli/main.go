package main

import "Trendline/client/trend-cli/cmd"

func main() {
	cmd.Execute()
}
