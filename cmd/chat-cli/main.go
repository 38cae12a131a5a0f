// Command chat-cli 是聊天服务的终端客户端：乐观发送、实时推送合并、/image 与 /search 命令。
package main

import (
	"flag"
	"fmt"
	"os"

	"gemini-chat-go/pkg/chatclient"
	"gemini-chat-go/pkg/chatview"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", envOr("CHAT_SERVER_URL", "http://localhost:8080"), "chat server base url")
	tok := flag.String("token", os.Getenv("CHAT_TOKEN"), "identity token (see cmd/issue-token)")
	flag.Parse()

	client := chatclient.New(*serverURL, chatclient.WithToken(*tok))
	session := chatview.NewSession(client, chatview.New())
	defer session.Close()

	p := tea.NewProgram(newApp(client, session), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running chat: %v\n", err)
		os.Exit(1)
	}
}
