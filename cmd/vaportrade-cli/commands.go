package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/DeGatchi/vaportrade/internal/config"
	"github.com/DeGatchi/vaportrade/internal/ipc"
	"github.com/DeGatchi/vaportrade/internal/trade"
	"github.com/DeGatchi/vaportrade/internal/wallet"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

// Argument errors.
var (
	ErrEmptyAddress = errors.New("address cannot be empty")
	ErrEmptyMessage = errors.New("message cannot be empty")
	ErrNoItems      = errors.New("offer file must contain a JSON array of items")
)

// agentClient is the part of ipc.Client the CLI uses.
type agentClient interface {
	Status() (ipc.StatusView, error)
	Peers() ([]ipc.PeerView, error)
	Trade(address string) error
	Select(address string) error
	Minimize() error
	CloseWindow() error
	Offer(items []protocol.Item) error
	LockIn(locked bool) error
	Accept(order json.RawMessage) error
	Chat(message string) error
	MorePeers() error
	Events(ctx context.Context, fn func(trade.Notification)) error
	Close() error
}

var _ agentClient = (*ipc.Client)(nil)

// CLI provides commands for interacting with the vaportrade agent.
type CLI struct {
	agentSocket string
	client      agentClient
	input       io.Reader
	output      io.Writer
}

// NewCLI creates a new CLI instance that connects to the agent via a Unix socket.
func NewCLI(agentSocket string) *CLI {
	return &CLI{
		agentSocket: agentSocket,
		input:       os.Stdin,
		output:      os.Stdout,
	}
}

// NewCLIWithDefaults creates a new CLI instance using the default socket path.
func NewCLIWithDefaults() *CLI {
	return NewCLI(config.DefaultPaths().AgentSocket)
}

// connect establishes a connection to the agent daemon.
func (c *CLI) connect() error {
	if c.client != nil {
		return nil
	}
	client, err := ipc.NewClient(c.agentSocket)
	if err != nil {
		return fmt.Errorf("failed to connect to agent daemon: %w", err)
	}
	c.client = client
	return nil
}

// Close closes the daemon connection.
func (c *CLI) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Status displays the agent's wallet, tracker and window state.
func (c *CLI) Status() error {
	fmt.Fprintln(c.output, "=== vaportrade Status ===")
	fmt.Fprintln(c.output)

	if err := c.connect(); err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}
	st, err := c.client.Status()
	if err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}

	fmt.Fprintf(c.output, "  Address: %s\n", st.Address)
	fmt.Fprintf(c.output, "  Trackers: connected to %d/%d\n", st.TrackersConnected, st.TrackersTotal)
	for _, t := range st.Trackers {
		state := "ok"
		if t.Failed {
			state = "failed"
		}
		fmt.Fprintf(c.output, "    - %s (%s)\n", t.AnnounceURL, state)
	}
	fmt.Fprintf(c.output, "  Trading Peers: %d\n", st.Peers)
	fmt.Fprintf(c.output, "  Anonymous Peers: %d\n", st.Anonymous)
	if st.Selected != "" {
		fmt.Fprintf(c.output, "  Active Trade: %s\n", st.Selected)
	} else {
		fmt.Fprintf(c.output, "  Active Trade: none\n")
	}

	if len(st.Windows) > 0 {
		fmt.Fprintln(c.output, "  Trade Windows:")
		for _, w := range st.Windows {
			marker := " "
			if w.Active {
				marker = "*"
			}
			badge := ""
			if w.HasNewInfo {
				badge = " (new)"
			}
			fmt.Fprintf(c.output, "   %s %s%s\n", marker, w.Address, badge)
		}
	}
	if len(st.Badges) > 0 {
		fmt.Fprintf(c.output, "  Unread: %d\n", len(st.Badges))
	}
	if len(st.Contacts) > 0 {
		fmt.Fprintln(c.output, "  Contacts:")
		for _, a := range st.Contacts {
			fmt.Fprintf(c.output, "    - %s\n", a)
		}
	}
	if len(st.Banned) > 0 {
		fmt.Fprintf(c.output, "  Closed: %s\n", strings.Join(st.Banned, ", "))
	}
	return nil
}

// Peers lists every identified trading peer.
func (c *CLI) Peers() error {
	if err := c.connect(); err != nil {
		return err
	}
	peers, err := c.client.Peers()
	if err != nil {
		return fmt.Errorf("failed to get peers: %w", err)
	}

	if len(peers) == 0 {
		fmt.Fprintln(c.output, "No trading peers")
		return nil
	}

	fmt.Fprintf(c.output, "Trading Peers (%d):\n", len(peers))
	fmt.Fprintln(c.output)
	for _, p := range peers {
		fmt.Fprintf(c.output, "  Address: %s\n", p.Address)
		fmt.Fprintf(c.output, "  Trade Requested: %v\n", p.TradeRequest)
		if p.Banned {
			fmt.Fprintln(c.output, "  Window: closed")
		}
		fmt.Fprintf(c.output, "  Their Status: %s\n", p.Status)
		fmt.Fprintf(c.output, "  My Status: %s\n", p.MyStatus)
		printItems(c.output, "  Their Offer", p.TradeOffer)
		printItems(c.output, "  My Offer", p.MyTradeOffer)
		if len(p.Chat) > 0 {
			fmt.Fprintln(c.output, "  Chat:")
			for _, e := range p.Chat {
				fmt.Fprintf(c.output, "    [%s] %s: %s\n", e.At.Format(time.Kitchen), e.Chatter, e.Message)
			}
		}
		fmt.Fprintln(c.output)
	}
	return nil
}

func printItems(w io.Writer, label string, items []protocol.Item) {
	if len(items) == 0 {
		fmt.Fprintf(w, "%s: nothing\n", label)
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(w, "    - %s %s %s", it.Balance, it.Type.Name, it.ContractAddress)
		if it.Name != "" {
			fmt.Fprintf(w, " (%s)", it.Name)
		}
		fmt.Fprintln(w)
	}
}

// Trade sends a trade request to address and opens its window.
func (c *CLI) Trade(address string) error {
	if address == "" {
		return ErrEmptyAddress
	}
	if err := c.connect(); err != nil {
		return err
	}
	if err := c.client.Trade(address); err != nil {
		return fmt.Errorf("failed to request trade: %w", err)
	}
	fmt.Fprintf(c.output, "Trade requested with %s\n", address)
	return nil
}

// Select toggles the active trade window.
func (c *CLI) Select(address string) error {
	if address == "" {
		return ErrEmptyAddress
	}
	if err := c.connect(); err != nil {
		return err
	}
	return c.client.Select(address)
}

// Minimize hides the active trade window.
func (c *CLI) Minimize() error {
	if err := c.connect(); err != nil {
		return err
	}
	return c.client.Minimize()
}

// CloseWindow closes the active trade window until the peer asks again.
func (c *CLI) CloseWindow() error {
	if err := c.connect(); err != nil {
		return err
	}
	return c.client.CloseWindow()
}

// Offer replaces the local offer with the items in path, a JSON array.
// A path of "-" reads standard input.
func (c *CLI) Offer(path string) error {
	items, err := c.readItems(path)
	if err != nil {
		return err
	}
	if err := c.connect(); err != nil {
		return err
	}
	if err := c.client.Offer(items); err != nil {
		return fmt.Errorf("failed to set offer: %w", err)
	}
	fmt.Fprintf(c.output, "Offer updated (%d items)\n", len(items))
	return nil
}

func (c *CLI) readItems(path string) ([]protocol.Item, error) {
	var data []byte
	var err error
	if path == "-" || path == "" {
		data, err = io.ReadAll(c.input)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read offer: %w", err)
	}

	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || data[0] != '[' {
		return nil, ErrNoItems
	}
	var items []protocol.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("invalid offer: %w", err)
	}
	return items, nil
}

// LockIn locks or unlocks the local offer.
func (c *CLI) LockIn(locked bool) error {
	if err := c.connect(); err != nil {
		return err
	}
	if err := c.client.LockIn(locked); err != nil {
		return err
	}
	if locked {
		fmt.Fprintln(c.output, "Offer locked in")
	} else {
		fmt.Fprintln(c.output, "Offer unlocked")
	}
	return nil
}

// Accept signs the trade. With an empty path the agent's wallet signs the
// order; otherwise the order in path is sent as is.
func (c *CLI) Accept(path string) error {
	var order json.RawMessage
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read order: %w", err)
		}
		order = data
	}
	if err := c.connect(); err != nil {
		return err
	}
	if err := c.client.Accept(order); err != nil {
		return fmt.Errorf("failed to accept: %w", err)
	}
	fmt.Fprintln(c.output, "Trade accepted")
	return nil
}

// Chat sends a message to the active partner.
func (c *CLI) Chat(words []string) error {
	msg := strings.TrimSpace(strings.Join(words, " "))
	if msg == "" {
		return ErrEmptyMessage
	}
	if err := c.connect(); err != nil {
		return err
	}
	return c.client.Chat(msg)
}

// MorePeers asks the agent to query its trackers again.
func (c *CLI) MorePeers() error {
	if err := c.connect(); err != nil {
		return err
	}
	if err := c.client.MorePeers(); err != nil {
		return err
	}
	fmt.Fprintln(c.output, "Requested more peers")
	return nil
}

// Watch prints notifications until ctx is cancelled.
func (c *CLI) Watch(ctx context.Context) error {
	if err := c.connect(); err != nil {
		return err
	}
	err := c.client.Events(ctx, func(n trade.Notification) {
		fmt.Fprintln(c.output, formatNotification(n))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func formatNotification(n trade.Notification) string {
	var b strings.Builder
	b.WriteString(string(n.Kind))
	if n.Address != "" {
		b.WriteString(" ")
		b.WriteString(n.Address)
	}
	if n.Detail != "" {
		b.WriteString(": ")
		b.WriteString(n.Detail)
	}
	return b.String()
}

// NewWallet prints a fresh mnemonic and the address it controls. The agent
// picks it up from VAPORTRADE_MNEMONIC.
func (c *CLI) NewWallet() error {
	w, mnemonic, err := wallet.NewWithMnemonic()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Address: %s\n", w.Address())
	fmt.Fprintf(c.output, "Fingerprint: %s\n", w.Fingerprint())
	fmt.Fprintf(c.output, "Mnemonic: %s\n", mnemonic)
	return nil
}

// printUsage prints the CLI usage information to stdout.
func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo prints the CLI usage information to the given writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, "vaportrade-cli - control a running vaportrade agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: vaportrade-cli <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status               Show wallet, tracker and window state")
	fmt.Fprintln(w, "  peers                List trading peers with offers and chat")
	fmt.Fprintln(w, "  trade <address>      Request a trade with a wallet address")
	fmt.Fprintln(w, "  select <address>     Toggle the active trade window")
	fmt.Fprintln(w, "  minimize             Hide the active trade window")
	fmt.Fprintln(w, "  close                Close the active trade window")
	fmt.Fprintln(w, "  offer <file|->       Replace my offer with a JSON array of items")
	fmt.Fprintln(w, "  lockin               Lock in my offer")
	fmt.Fprintln(w, "  unlock               Unlock my offer")
	fmt.Fprintln(w, "  accept [order.json]  Sign the trade (agent wallet signs when no file)")
	fmt.Fprintln(w, "  chat <message>       Send a chat message to the active partner")
	fmt.Fprintln(w, "  more-peers           Ask trackers for more peers")
	fmt.Fprintln(w, "  watch                Stream notifications")
	fmt.Fprintln(w, "  wallet-new           Generate a mnemonic and print its address")
	fmt.Fprintln(w, "  help                 Show this help")
}
