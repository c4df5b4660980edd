package main

import "github.com/ElijahCirioli/zing-video-chat/cmd/zing-call/cmd"

func main() {
	cmd.Execute()
}
