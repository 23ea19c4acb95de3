package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/panleme/panleme/internal/chat"
	"github.com/panleme/panleme/internal/persona"
)

// PlainChat runs the chat loop with plain terminal output (fmt.Print and a
// bufio.Scanner). Used when stdout is not a terminal or TUI mode is off.
type PlainChat struct {
	store    *chat.Store
	personas *persona.Registry
	scanner  *bufio.Scanner
	changed  chan struct{}
}

// NewPlainChat creates a PlainChat reading from stdin.
func NewPlainChat(store *chat.Store, personas *persona.Registry) *PlainChat {
	s := bufio.NewScanner(os.Stdin)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainChat{
		store:    store,
		personas: personas,
		scanner:  s,
		changed:  make(chan struct{}, 1),
	}
}

// Run drives the REPL until EOF or /quit.
func (c *PlainChat) Run() error {
	c.store.SetOnChange(func() {
		select {
		case c.changed <- struct{}{}:
		default:
		}
	})
	defer func() {
		c.store.SetOnChange(nil)
		c.store.CancelAllStreams()
	}()

	if c.store.PersonaType() == persona.TypeUnselected {
		if err := c.choosePersona(); err != nil {
			return err
		}
	}
	c.printTranscript()

	for {
		text, err := c.readLine("\n> ")
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			c.store.CancelAllStreams()
			if err := c.choosePersona(); err != nil {
				return err
			}
			c.printTranscript()
			continue
		case "/sessions":
			for _, sess := range c.store.Sessions() {
				fmt.Printf("  %s\n", sess.Title)
			}
			continue
		case "/recap":
			if err := c.store.GenerateSummary(); err != nil {
				fmt.Fprintf(os.Stderr, "无法生成复盘: %v\n", err)
				continue
			}
			msgs := c.store.Messages()
			c.streamOut(msgs[len(msgs)-1].ID)
			continue
		}

		id := c.store.SendMessage(text)
		if id == "" {
			continue
		}
		c.store.StartStreaming(id)
		c.streamOut(id)

		if c.store.RecapDue() {
			fmt.Println("(要不要复盘一下今天? 输入 /recap)")
		}
	}
}

// choosePersona prints the persona list and reads a selection by number.
func (c *PlainChat) choosePersona() error {
	list := c.personas.List()
	fmt.Println("选择一个角色:")
	for i, p := range list {
		fmt.Printf("  %d. %s  %s\n", i+1, p.Name, p.Description)
	}
	for {
		answer, err := c.readLine("编号: ")
		if err != nil {
			return err
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(list) {
			c.store.StartOrSwitchToSession(list[n-1].ID)
			return nil
		}
		fmt.Println("无效编号")
	}
}

func (c *PlainChat) printTranscript() {
	fmt.Println()
	for _, m := range c.store.Messages() {
		if m.Hidden() {
			continue
		}
		if m.Role == chat.RoleUser {
			fmt.Printf("你: %s\n", m.Content)
		} else {
			fmt.Println(m.Content)
		}
		if m.ShouldAnimate {
			c.store.MarkAnimationDone(m.ID)
		}
	}
}

// streamOut prints deltas as they arrive and blocks until the message
// reaches a terminal state.
func (c *PlainChat) streamOut(id string) {
	printed := 0
	unsubscribe := c.store.SubscribeToStream(id, func(full string) {
		if len(full) > printed {
			fmt.Print(full[printed:])
			printed = len(full)
		}
	})
	defer unsubscribe()

	fmt.Println()
	for {
		m, ok := c.findMessage(id)
		if !ok {
			return
		}
		if m.Status.Terminal() {
			// The terminal content may extend past the streamed buffer
			// (error annotations) or replace it entirely (missing key).
			if printed < len(m.Content) {
				fmt.Print(m.Content[printed:])
			}
			if m.Status == chat.StatusInterrupted {
				fmt.Print("\n[已中断]")
			}
			fmt.Println()
			return
		}
		<-c.changed
	}
}

func (c *PlainChat) findMessage(id string) (chat.Message, bool) {
	for _, m := range c.store.Messages() {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

func (c *PlainChat) readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.scanner.Text()), nil
}
