package main

import "github.com/rudransh-shrivastava/ao-chat/internal/client/cmd"

func main() {
	cmd.Execute()
}
