package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/events"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	consoleCommandPrefix   = "/"
	consoleCommandStart    = "/start"
	consoleCommandTab      = "/tab"
	consoleCommandChat     = "/chat"
	consoleCommandOpen     = "/open"
	consoleCommandBack     = "/back"
	consoleCommandTask     = "/task"
	consoleCommandShow     = "/show"
	consoleCommandCommands = "/commands"
	consoleCommandQuit     = "/quit"

	taskActionAdd    = "add"
	taskActionToggle = "toggle"
	taskActionRemove = "remove"

	consoleHelpText = `Commands:
  /start                 dismiss the welcome message
  /tab home|messages|help|tasks
  /chat                  open the chat thread
  /open <n>              open message summary n
  /back                  return to the message list
  /task add <text>       add a task
  /task toggle <n>       toggle task n
  /task remove <n>       remove task n
  /show                  redraw the widget
  /quit                  leave
Any other line is sent to the chatbot.`
)

var (
	errUnknownConsoleCommand = errors.New("unknown command")
	errMissingArgument       = errors.New("missing argument")
)

// console drives one widget session from line-oriented input.
type console struct {
	session     *widget.Session
	notices     *events.NoticeBus
	output      io.Writer
	sendTimeout time.Duration
	now         func() time.Time
}

func newConsole(session *widget.Session, notices *events.NoticeBus, output io.Writer, sendTimeout time.Duration) *console {
	return &console{session: session, notices: notices, output: output, sendTimeout: sendTimeout, now: time.Now}
}

// Run renders the widget, then executes input lines until /quit, end of input or ctx ends.
func (terminal *console) Run(ctx context.Context, input io.Reader) error {
	terminal.render()
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == consoleCommandQuit {
			return nil
		}
		if executeErr := terminal.execute(ctx, line); executeErr != nil {
			fmt.Fprintf(terminal.output, "! %s\n", describeConsoleError(executeErr))
			continue
		}
		terminal.render()
	}
	return scanner.Err()
}

func (terminal *console) execute(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, consoleCommandPrefix) {
		return terminal.send(ctx, line)
	}
	command, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)
	switch command {
	case consoleCommandStart:
		return terminal.session.DismissWelcome()
	case consoleCommandTab:
		tab, parseErr := widget.ParseTab(argument)
		if parseErr != nil {
			return parseErr
		}
		return terminal.session.SwitchTab(tab)
	case consoleCommandChat:
		return terminal.session.OpenChat()
	case consoleCommandOpen:
		index, parseErr := parsePosition(argument)
		if parseErr != nil {
			return parseErr
		}
		return terminal.session.OpenHistoryMessage(index)
	case consoleCommandBack:
		return terminal.session.ShowMessageList()
	case consoleCommandTask:
		return terminal.executeTask(argument)
	case consoleCommandShow:
		return nil
	case consoleCommandCommands:
		fmt.Fprintln(terminal.output, consoleHelpText)
		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownConsoleCommand, command)
	}
}

func (terminal *console) executeTask(argument string) error {
	action, remainder, _ := strings.Cut(argument, " ")
	remainder = strings.TrimSpace(remainder)
	switch action {
	case taskActionAdd:
		return terminal.session.AddTask(remainder)
	case taskActionToggle, taskActionRemove:
		index, parseErr := parsePosition(remainder)
		if parseErr != nil {
			return parseErr
		}
		if action == taskActionToggle {
			return terminal.session.ToggleTask(index)
		}
		return terminal.session.RemoveTask(index)
	default:
		return fmt.Errorf("%w: /task %s", errUnknownConsoleCommand, action)
	}
}

// send posts a message and waits for the bot reply so the thread is complete when redrawn.
func (terminal *console) send(ctx context.Context, text string) error {
	if sendErr := terminal.session.SendMessage(ctx, text); sendErr != nil {
		return sendErr
	}
	waitContext, cancelWait := context.WithTimeout(ctx, terminal.sendTimeout)
	defer cancelWait()
	return terminal.session.WaitIdle(waitContext)
}

// parsePosition converts the 1-based positions shown on screen into indexes.
func parsePosition(rawPosition string) (int, error) {
	if rawPosition == "" {
		return 0, errMissingArgument
	}
	position, parseErr := strconv.Atoi(rawPosition)
	if parseErr != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errMissingArgument, rawPosition)
	}
	return position - 1, nil
}

func describeConsoleError(consoleErr error) string {
	switch {
	case errors.Is(consoleErr, widget.ErrWelcomePopupActive):
		return "dismiss the welcome message first with /start"
	case errors.Is(consoleErr, widget.ErrChatbotUnavailable):
		return "the chatbot could not be loaded, messages cannot be sent"
	case errors.Is(consoleErr, widget.ErrTaskIndexOutOfRange), errors.Is(consoleErr, widget.ErrConversationIndexOutOfRange):
		return "no item at that position"
	case errors.Is(consoleErr, widget.ErrUnknownTab):
		return "tabs are home, messages, help and tasks"
	case errors.Is(consoleErr, context.DeadlineExceeded):
		return "the chatbot did not answer in time"
	case errors.Is(consoleErr, errUnknownConsoleCommand):
		return consoleErr.Error() + " (try /commands)"
	default:
		return consoleErr.Error()
	}
}

func (terminal *console) render() {
	snapshot := terminal.session.Snapshot()
	output := terminal.output
	fmt.Fprintf(output, "\n== %s %s ==\n", snapshot.Chatbot.Icon, snapshot.Chatbot.Name)
	for _, notice := range terminal.activeNotices() {
		fmt.Fprintf(output, "[%s] %s\n", notice.Type, notice.Message)
	}

	if snapshot.WelcomePopupVisible {
		fmt.Fprintf(output, "%s\n(type /start to continue)\n", snapshot.PopupText)
		return
	}

	switch snapshot.ActiveTab {
	case widget.TabMessages:
		terminal.renderMessages(snapshot)
	case widget.TabHelp:
		renderHelp(output, snapshot.Chatbot)
	case widget.TabTasks:
		renderTasks(output, snapshot)
	default:
		fmt.Fprintf(output, "[%s] %s\n", snapshot.AvatarInitial, snapshot.Greeting)
		preview := snapshot.HomePreview.Text
		if snapshot.HomePreview.AgeLabel != "" {
			preview += " · " + snapshot.HomePreview.AgeLabel
		}
		fmt.Fprintf(output, "%s\n", preview)
	}
	fmt.Fprintf(output, "-- home | messages (%d) | help | tasks --  [%s]\n", snapshot.MessageCount, snapshot.ActiveTab)
}

func (terminal *console) renderMessages(snapshot widget.Snapshot) {
	output := terminal.output
	if snapshot.MessagesView == widget.MessagesViewList {
		if len(snapshot.History) == 0 {
			fmt.Fprintln(output, "No earlier messages.")
		}
		for _, summary := range snapshot.History {
			fmt.Fprintf(output, "%d. %s (%s)\n", summary.Index+1, summary.Text, summary.AgeLabel)
		}
		fmt.Fprintln(output, "(/chat to send us a message)")
		return
	}
	for _, message := range snapshot.Messages {
		speaker := snapshot.Chatbot.Name
		if message.Type == model.MessageTypeUser {
			speaker = snapshot.UserName
		}
		marker := ""
		if message.IsError {
			marker = " !"
		}
		fmt.Fprintf(output, "%s%s: %s  (%s)\n", speaker, marker, message.Text, humanize.RelTime(message.Timestamp, terminal.now(), "ago", "from now"))
	}
	if snapshot.Sending {
		fmt.Fprintf(output, "%s is typing...\n", snapshot.Chatbot.Name)
	}
}

func renderHelp(output io.Writer, chatbot model.ChatbotConfig) {
	if len(chatbot.FAQs) == 0 {
		fmt.Fprintln(output, "No FAQs available yet.")
	}
	for _, faq := range chatbot.FAQs {
		fmt.Fprintf(output, "Q: %s\nA: %s\n", faq.Question, faq.Answer)
	}
	if chatbot.KnowledgeSource != "" {
		fmt.Fprintf(output, "Knowledge source: %s\n", chatbot.KnowledgeSource)
	}
}

func renderTasks(output io.Writer, snapshot widget.Snapshot) {
	progress := snapshot.TaskProgress
	fmt.Fprintf(output, "%d of %d done (%d%%)\n", progress.Completed, progress.Total, progress.Percent)
	for index, task := range snapshot.Tasks {
		checkbox := "[ ]"
		if task.Completed {
			checkbox = "[x]"
		}
		fmt.Fprintf(output, "%d. %s %s\n", index+1, checkbox, task.Text)
	}
}

func (terminal *console) activeNotices() []events.Notice {
	if terminal.notices == nil {
		return nil
	}
	return terminal.notices.Active()
}
